package domain

import (
	"encoding/json"
	"time"
)

type PostKind int

const (
	PostKindNone    PostKind = 0
	PostKindTown    PostKind = 1
	PostKindMarket  PostKind = 2
	PostKindStorage PostKind = 3
)

func (k PostKind) String() string {
	switch k {
	case PostKindTown:
		return "town"
	case PostKindMarket:
		return "market"
	case PostKindStorage:
		return "storage"
	default:
		return "none"
	}
}

type TickStatus string

const (
	TickStatusCommitted  TickStatus = "committed"
	TickStatusRolledBack TickStatus = "rolled_back"
	TickStatusFailed     TickStatus = "failed"
)

// Point is a vertex of the static map layer.
type Point struct {
	ID     int  `json:"idx"`
	PostID *int `json:"post_idx"`
}

// Line is an undirected rail segment between two points.
type Line struct {
	ID     int     `json:"idx"`
	Points [2]int  `json:"points"`
	Length float64 `json:"length"`
}

type StaticMap struct {
	ID     int     `json:"idx"`
	Name   string  `json:"name"`
	Points []Point `json:"points"`
	Lines  []Line  `json:"lines"`
}

type Coordinate struct {
	ID int     `json:"idx"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

type Coordinates struct {
	Points []Coordinate `json:"coordinates"`
	Size   [2]float64   `json:"size"`
}

type Post struct {
	ID                 int      `json:"idx"`
	Kind               PostKind `json:"type"`
	Name               string   `json:"name"`
	PointID            int      `json:"point_idx"`
	Goods              float64  `json:"product"`
	GoodsCapacity      float64  `json:"product_capacity"`
	Armor              float64  `json:"armor"`
	ArmorCapacity      float64  `json:"armor_capacity"`
	Population         float64  `json:"population"`
	PopulationCapacity float64  `json:"population_capacity"`
	Replenishment      float64  `json:"replenishment"`
	Level              int      `json:"level"`
	NextLevelPrice     float64  `json:"next_level_price"`
}

type Train struct {
	ID             int     `json:"idx"`
	LineID         int     `json:"line_idx"`
	Position       float64 `json:"position"`
	Speed          int     `json:"speed"`
	Goods          float64 `json:"goods"`
	GoodsCapacity  float64 `json:"goods_capacity"`
	Owner          string  `json:"player_idx"`
	Cooldown       int     `json:"cooldown"`
	Level          int     `json:"level"`
	NextLevelPrice float64 `json:"next_level_price"`
}

// Loaded reports a train that carries a full load.
func (t Train) Loaded() bool {
	return t.Goods > 0 && t.Goods == t.GoodsCapacity
}

// Farming reports a train that is partially loaded and still filling up.
func (t Train) Farming() bool {
	return t.Goods > 0 && t.Goods != t.GoodsCapacity
}

// Snapshot is the per-tick dynamic state published by the game server.
type Snapshot struct {
	Posts  []Post  `json:"posts"`
	Trains []Train `json:"trains"`
}

type Player struct {
	ID        string
	Name      string
	HomePoint int
	HomePost  int
	Rating    int
}

// Move instructs one train to travel along a line. Speed is -1, 0 or 1.
type Move struct {
	LineID  int `json:"line_idx"`
	Speed   int `json:"speed"`
	TrainID int `json:"train_idx"`
}

type Upgrade struct {
	Posts  []int `json:"posts"`
	Trains []int `json:"trains"`
}

func (u Upgrade) Empty() bool {
	return len(u.Posts) == 0 && len(u.Trains) == 0
}

type Decision struct {
	TrainID int             `json:"train_id"`
	Action  string          `json:"action"`
	Reason  string          `json:"reason"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TickEvent summarises one scheduler cycle.
type TickEvent struct {
	ID         string        `json:"id"`
	GameTick   int           `json:"game_tick"`
	Status     TickStatus    `json:"status"`
	SpentArmor float64       `json:"spent_armor"`
	Score      float64       `json:"score"`
	Moves      []Move        `json:"moves"`
	Upgrade    Upgrade       `json:"upgrade"`
	Decisions  []Decision    `json:"decisions,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}

type TickRecord struct {
	ID         string          `json:"id"`
	GameTick   int             `json:"game_tick"`
	Status     TickStatus      `json:"status"`
	SpentArmor float64         `json:"spent_armor"`
	Score      float64         `json:"score"`
	Moves      int             `json:"moves"`
	Upgrade    json.RawMessage `json:"upgrade"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

type DecisionLog struct {
	ID        int64           `json:"id"`
	TickID    string          `json:"tick_id"`
	TrainID   int             `json:"train_id"`
	Action    string          `json:"action"`
	Reason    string          `json:"reason"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
