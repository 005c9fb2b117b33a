package scheduler

import (
	"fmt"
	"math"
	"sort"

	"railhaul/internal/domain"
	"railhaul/internal/ledger"
	"railhaul/internal/routing"
	"railhaul/internal/valuation"
)

type plan struct {
	upgrade   domain.Upgrade
	moves     []domain.Move
	decisions []domain.Decision
}

func (p *plan) decide(trainID int, action, reason string, payload any) {
	d := domain.Decision{TrainID: trainID, Action: action, Reason: reason}
	if payload != nil {
		d.Payload = mustJSON(payload)
	}
	p.decisions = append(p.decisions, d)
}

// plan refreshes the world and computes this tick's upgrades and moves. It
// touches no remote state, so an error here leaves nothing half applied.
func (s *Scheduler) plan(snap domain.Snapshot) (plan, error) {
	var p plan
	if err := s.world.Refresh(snap); err != nil {
		return p, err
	}
	s.gameTick++

	trains := s.world.Trains()
	s.forgetMissing(trains)
	if err := s.ledger.Rebuild(trains, s.world.Towns(), s.targets); err != nil {
		return p, err
	}

	s.economy(trains, &p)
	if err := s.assign(trains, &p); err != nil {
		return p, err
	}
	return p, nil
}

// forgetMissing drops assignments of trains that left the map so their
// targets stop being claimed.
func (s *Scheduler) forgetMissing(trains []domain.Train) {
	present := make(map[int]struct{}, len(trains))
	for _, t := range trains {
		present[t.ID] = struct{}{}
	}
	for id := range s.targets {
		if _, ok := present[id]; !ok {
			delete(s.targets, id)
		}
	}
}

// economy funds train upgrades at home cheapest first, then at most one
// town level.
func (s *Scheduler) economy(trains []domain.Train, p *plan) {
	home := s.world.HomePost()
	if home.Kind != domain.PostKindTown {
		return
	}
	armor := home.Armor
	homeCell := ledger.VertexCell(s.world.Home())
	maxLevel := s.policy.Rules().MaxTrainLevel

	var own []domain.Train
	maxed := true
	for _, t := range trains {
		if t.Owner != s.cfg.Owner {
			continue
		}
		own = append(own, t)
		if t.Level < maxLevel {
			maxed = false
		}
	}
	sort.SliceStable(own, func(i, j int) bool {
		if own[i].NextLevelPrice != own[j].NextLevelPrice {
			return own[i].NextLevelPrice < own[j].NextLevelPrice
		}
		return own[i].ID < own[j].ID
	})

	for _, t := range own {
		edge, _ := s.world.Graph().Edge(t.LineID)
		atHome := ledger.CellAt(edge, t.Position) == homeCell
		ok, reason := s.policy.CanUpgradeTrain(t, atHome, armor)
		if !ok {
			continue
		}
		armor -= t.NextLevelPrice
		s.spent += t.NextLevelPrice
		p.upgrade.Trains = append(p.upgrade.Trains, t.ID)
		p.decide(t.ID, "upgrade_train", reason, map[string]any{"level": t.Level, "price": t.NextLevelPrice})
	}

	ok, reason := s.policy.CanUpgradeTown(home, maxed, armor, s.gameTick)
	if ok {
		s.spent += home.NextLevelPrice
		p.upgrade.Posts = append(p.upgrade.Posts, home.ID)
	}
	if ok || home.Level < s.policy.Rules().MaxTownLevel {
		action := "hold_town"
		if ok {
			action = "upgrade_town"
		}
		p.decide(0, action, reason, map[string]any{"post": home.ID, "level": home.Level, "price": home.NextLevelPrice})
	}
}

// assign walks trains from the highest level down, choosing a target and a
// next step for each. The ledger is updated after every train so later
// trains see earlier reservations.
func (s *Scheduler) assign(trains []domain.Train, p *plan) error {
	order := make([]domain.Train, len(trains))
	copy(order, trains)
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].Level != order[j].Level {
			return order[i].Level > order[j].Level
		}
		return order[i].ID < order[j].ID
	})

	quota := s.policy.MarketsToFocus(s.world.HomePost().Population)
	for _, t := range order {
		if t.Cooldown != 0 {
			if _, ok := s.targets[t.ID]; ok {
				delete(s.targets, t.ID)
				s.ledger.Unclaim(t.ID)
			}
			if t.Owner == s.cfg.Owner {
				s.idle(p, t.ID, "cooldown", fmt.Sprintf("cooldown=%d", t.Cooldown))
			}
			continue
		}
		if t.Owner != s.cfg.Owner {
			continue
		}
		mv, ok, err := s.planTrain(t, &quota, p)
		if err != nil {
			return err
		}
		if ok {
			p.moves = append(p.moves, mv)
		}
	}
	return nil
}

func (s *Scheduler) idle(p *plan, trainID int, reason, detail string) {
	s.metrics.RecordIdle(reason)
	p.decide(trainID, "idle", reason+": "+detail, nil)
}

func (s *Scheduler) planTrain(t domain.Train, quota *int, p *plan) (domain.Move, bool, error) {
	defer func() {
		if *quota > 0 {
			*quota--
		}
	}()

	if t.Farming() {
		s.idle(p, t.ID, "farming", fmt.Sprintf("goods=%v capacity=%v", t.Goods, t.GoodsCapacity))
		return domain.Move{}, false, nil
	}

	edge, _ := s.world.Graph().Edge(t.LineID)
	start := s.effectiveStart(t, edge)
	target := s.world.Home()

	if t.Goods == 0 {
		prev, had := s.targets[t.ID]
		headingToMarket := had && s.world.Kind(prev) == domain.PostKindMarket
		s.ledger.Unclaim(t.ID)

		kind, reason := s.policy.Target(s.gameTick, *quota, headingToMarket, t.Level)
		c, ok := s.pickTarget(t, kind, start)
		if !ok {
			delete(s.targets, t.ID)
			s.idle(p, t.ID, "no_target", fmt.Sprintf("no reachable %s", kind))
			return domain.Move{}, false, nil
		}
		target = c.Vertex
		s.targets[t.ID] = target
		s.ledger.Claim(t.ID, target)
		p.decide(t.ID, "target", reason, map[string]any{
			"post":  s.world.Post(target).ID,
			"kind":  kind.String(),
			"score": finite(c.Score),
		})
	} else {
		delete(s.targets, t.ID)
		s.ledger.Unclaim(t.ID)
	}

	return s.routeTo(t, edge, start, target, p)
}

func (s *Scheduler) pickTarget(t domain.Train, kind domain.PostKind, start routing.Start) (valuation.Candidate, bool) {
	req := valuation.Request{
		Start:    start,
		Capacity: t.GoodsCapacity,
		Arcs:     s.ledger.Constraints(t.ID).Arcs,
	}
	if kind == domain.PostKindMarket {
		return s.model.BestMarket(req)
	}
	req.Avoid = s.ledger.Claimed(t.ID)
	if c, ok := s.model.BestStorage(req); ok {
		return c, true
	}
	req.Avoid = nil
	c, ok := s.model.BestStorage(req)
	if ok {
		s.metrics.RecordRouteFallback()
	}
	return c, ok
}

// effectiveStart resolves where a train on edge begins its route: the nearer
// endpoint, or the farther one when a reserved cell blocks the way.
func (s *Scheduler) effectiveStart(t domain.Train, edge routing.Edge) routing.Start {
	switch {
	case t.Position <= 0:
		return routing.AtVertex(edge.From)
	case t.Position >= edge.Length:
		return routing.AtVertex(edge.To)
	}
	near, offset := edge.From, t.Position
	if t.Position >= edge.Length/2 {
		near, offset = edge.To, edge.Length-t.Position
	}
	if s.ledger.Blocked(edge, t.Position, near, t.ID) {
		near, offset = edge.Other(near), edge.Length-offset
	}
	return routing.OnEdge(edge, near, offset)
}

// segregation returns the posts of the kind opposite to the target's.
func (s *Scheduler) segregation(to int) map[int]struct{} {
	var opposite []int
	switch s.world.Kind(to) {
	case domain.PostKindMarket:
		opposite = s.world.Storages()
	case domain.PostKindStorage:
		opposite = s.world.Markets()
	}
	out := make(map[int]struct{}, len(opposite))
	for _, v := range opposite {
		out[v] = struct{}{}
	}
	return out
}

func (s *Scheduler) routeTo(t domain.Train, edge routing.Edge, start routing.Start, to int, p *plan) (domain.Move, bool, error) {
	g := s.world.Graph()
	segregation := s.segregation(to)
	live := s.ledger.Constraints(t.ID)

	strict := routing.Constraints{Vertices: map[int]struct{}{}, Arcs: live.Arcs}
	for v := range segregation {
		strict.Vertices[v] = struct{}{}
	}
	for v := range live.Vertices {
		strict.Vertices[v] = struct{}{}
	}
	for v := range s.ledger.Claimed(t.ID) {
		if v != to {
			strict.Vertices[v] = struct{}{}
		}
	}

	route, ok := g.NextHop(start, to, strict)
	if !ok {
		route, ok = g.NextHop(start, to, routing.Constraints{Vertices: segregation})
		if ok {
			s.metrics.RecordRouteFallback()
		}
	}
	if !ok {
		s.idle(p, t.ID, "no_route", fmt.Sprintf("%v: from=%d to=%d", domain.ErrNoRoute, start.Vertex, to))
		return domain.Move{}, false, nil
	}

	current := ledger.CellAt(edge, t.Position)
	var mv domain.Move
	var next ledger.Cell

	if t.Position <= 0 || t.Position >= edge.Length {
		if route.Next == start.Vertex {
			s.idle(p, t.ID, "arrived", fmt.Sprintf("at vertex %d", to))
			return domain.Move{}, false, nil
		}
		onto, found := g.Edge(route.Line)
		entry, joins := ledger.EntryPosition(onto, start.Vertex)
		if !found || !joins || onto.Other(start.Vertex) != route.Next {
			return domain.Move{}, false, fmt.Errorf("%w: train %d has no line %d from %d to %d",
				domain.ErrInvariantViolation, t.ID, route.Line, start.Vertex, route.Next)
		}
		speed := 1
		if start.Vertex == onto.To {
			speed = -1
		}
		mv = domain.Move{LineID: onto.ID, Speed: speed, TrainID: t.ID}
		next = ledger.NextCell(onto, entry, speed)
	} else {
		// Origin is the endpoint reached first. Next can be either end when
		// lines run in parallel.
		var speed int
		switch {
		case route.Line != edge.ID:
			return domain.Move{}, false, fmt.Errorf("%w: train %d on line %d routed along line %d",
				domain.ErrInvariantViolation, t.ID, edge.ID, route.Line)
		case route.Origin == edge.From:
			speed = -1
		case route.Origin == edge.To:
			speed = 1
		default:
			return domain.Move{}, false, fmt.Errorf("%w: train %d on line %d routed from %d",
				domain.ErrInvariantViolation, t.ID, edge.ID, route.Origin)
		}
		mv = domain.Move{LineID: edge.ID, Speed: speed, TrainID: t.ID}
		next = ledger.NextCell(edge, t.Position, speed)
	}

	if s.cfg.Debug {
		s.logger.Printf("route train=%d source=%d target=%d via=%d line=%d speed=%d",
			t.ID, start.Vertex, to, route.Next, mv.LineID, mv.Speed)
	}

	payload := map[string]any{"line": mv.LineID, "via": route.Next, "cell": next.String()}
	if s.ledger.TakenByOther(next, t.ID) {
		mv.Speed = 0
		s.metrics.RecordStall()
		p.decide(t.ID, "stall", "next cell reserved", payload)
		return mv, true, nil
	}
	s.ledger.Move(t.ID, current, next)
	payload["speed"] = mv.Speed
	p.decide(t.ID, "move", fmt.Sprintf("toward post %d", s.world.Post(to).ID), payload)
	return mv, true, nil
}

// finite keeps decision payloads JSON encodable.
func finite(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprint(v)
	}
	return v
}
