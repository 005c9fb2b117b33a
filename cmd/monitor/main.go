package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"railhaul/internal/domain"
	"railhaul/internal/scheduler"
)

type client struct {
	baseURL string
	http    *http.Client
}

type embeddedAgent struct {
	cmd *exec.Cmd
}

func main() {
	addr := flag.String("addr", "http://localhost:8090", "railhaul base URL")
	interval := flag.Duration("interval", time.Second, "refresh interval")
	embedded := flag.Bool("embedded", false, "start railhaul in the same monitor process lifecycle")
	agentBinary := flag.String("railhaul-bin", "", "path to railhaul binary (optional in embedded mode)")
	configPath := flag.String("config", "", "config file passed to the embedded railhaul")
	flag.Parse()

	c := &client{
		baseURL: strings.TrimRight(*addr, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	if *embedded {
		proc, err := startEmbeddedAgent(*addr, *agentBinary, *configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start embedded railhaul: %v\n", err)
			os.Exit(1)
		}
		defer proc.Stop()
	}

	if err := waitHealth(c, 30*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "railhaul health check failed: %v\n", err)
		os.Exit(1)
	}

	app := tview.NewApplication()
	ticksTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false)
	ticksTable.SetTitle("Ticks (Enter inspect, F5 refresh, F10 quit)").SetBorder(true)

	trainsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	trainsView.SetTitle("Trains").SetBorder(true)

	postsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	postsView.SetTitle("Posts").SetBorder(true)

	decisionsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	decisionsView.SetTitle("Decisions").SetBorder(true)

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")
	statusView.SetText(fmt.Sprintf("Connected to %s | embedded=%t | shortcuts: F10 quit, F5 refresh", c.baseURL, *embedded))

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(trainsView, 0, 2, false).
		AddItem(postsView, 0, 2, false).
		AddItem(decisionsView, 0, 3, false)

	mainLayout := tview.NewFlex().
		AddItem(ticksTable, 0, 1, true).
		AddItem(right, 0, 2, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 12, true).
		AddItem(statusView, 3, 0, false)

	var selectedTickID string
	var lastTicks []domain.TickRecord
	var detailsVersion uint64

	refreshState := func() {
		state, err := c.state()
		app.QueueUpdateDraw(func() {
			if err != nil {
				trainsView.SetText(fmt.Sprintf("error: %v", err))
				return
			}
			trainsView.SetText(renderTrains(state))
			postsView.SetText(renderPosts(state.Posts))
			statusView.SetText(renderStatus(c.baseURL, state))
		})
	}

	refreshTicks := func() {
		ticks, err := c.listTicks(200)
		if err != nil {
			app.QueueUpdateDraw(func() {
				ticksTable.Clear()
				ticksTable.SetCell(0, 0, tview.NewTableCell(fmt.Sprintf("load error: %v", err)).SetTextColor(tview.Styles.ContrastSecondaryTextColor))
			})
			return
		}
		lastTicks = ticks
		app.QueueUpdateDraw(func() {
			renderTicksTable(ticksTable, ticks, selectedTickID)
		})
	}

	refreshDecisionsAsync := func(tickID string) {
		if strings.TrimSpace(tickID) == "" {
			return
		}
		version := atomic.AddUint64(&detailsVersion, 1)
		go func(selected string, v uint64) {
			items, err := c.listTickDecisions(selected, 300)
			if atomic.LoadUint64(&detailsVersion) != v {
				return
			}
			app.QueueUpdateDraw(func() {
				if selected != selectedTickID {
					return
				}
				if err != nil {
					decisionsView.SetText(fmt.Sprintf("error: %v", err))
					return
				}
				decisionsView.SetTitle("Decisions " + shortID(selected))
				decisionsView.SetText(renderDecisions(items))
			})
		}(tickID, version)
	}

	ticksTable.SetSelectedFunc(func(row, _ int) {
		if row <= 0 || row > len(lastTicks) {
			return
		}
		selectedTickID = lastTicks[row-1].ID
		refreshDecisionsAsync(selectedTickID)
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10:
			app.Stop()
			return nil
		case tcell.KeyF5:
			go func() {
				refreshState()
				refreshTicks()
				refreshDecisionsAsync(selectedTickID)
			}()
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'q' {
				app.Stop()
				return nil
			}
		}
		return event
	})

	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()

		for {
			refreshState()
			refreshTicks()
			if selectedTickID == "" && len(lastTicks) > 0 {
				selectedTickID = lastTicks[0].ID
			}
			refreshDecisionsAsync(selectedTickID)
			<-ticker.C
		}
	}()

	if err := app.SetRoot(root, true).EnableMouse(true).SetFocus(ticksTable).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}

func waitHealth(c *client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		req, err := http.NewRequest(http.MethodGet, c.baseURL+"/healthz", nil)
		if err == nil {
			resp, err := c.http.Do(req)
			if err == nil {
				_ = resp.Body.Close()
				if resp.StatusCode < 300 {
					return nil
				}
			}
		}
		time.Sleep(400 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for /healthz")
}

func startEmbeddedAgent(addr, binary, configPath string) (*embeddedAgent, error) {
	parsed, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse addr: %w", err)
	}
	port := parsed.Port()
	if port == "" {
		return nil, fmt.Errorf("addr must include explicit port, got %q", addr)
	}
	args := []string{"--addr", ":" + port}
	if strings.TrimSpace(configPath) != "" {
		args = append(args, "--config", configPath)
	}

	var cmd *exec.Cmd
	if strings.TrimSpace(binary) != "" {
		cmd = exec.Command(binary, args...)
	} else {
		self, err := os.Executable()
		if err == nil {
			sibling := filepath.Join(filepath.Dir(self), "railhaul")
			if fileExists(sibling) {
				cmd = exec.Command(sibling, args...)
			}
		}
		if cmd == nil {
			cmd = exec.Command("go", append([]string{"run", "./cmd/railhaul"}, args...)...)
			cwd, _ := os.Getwd()
			cmd.Dir = cwd
		}
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start railhaul process: %w", err)
	}
	return &embeddedAgent{cmd: cmd}, nil
}

func (e *embeddedAgent) Stop() {
	if e == nil || e.cmd == nil || e.cmd.Process == nil {
		return
	}
	_ = e.cmd.Process.Signal(os.Interrupt)
	done := make(chan struct{})
	go func() {
		_, _ = e.cmd.Process.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = e.cmd.Process.Kill()
		<-done
	}
}

func (c *client) state() (scheduler.State, error) {
	var out scheduler.State
	if err := c.getJSON("/state", &out); err != nil {
		return scheduler.State{}, err
	}
	return out, nil
}

func (c *client) listTicks(limit int) ([]domain.TickRecord, error) {
	var out []domain.TickRecord
	if err := c.getJSON(fmt.Sprintf("/ticks?limit=%d", limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) listTickDecisions(tickID string, limit int) ([]domain.DecisionLog, error) {
	var out []domain.DecisionLog
	if err := c.getJSON(fmt.Sprintf("/ticks/%s/decisions?limit=%d", tickID, limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return err
	}
	return nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
