package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
	termbox "github.com/nsf/termbox-go"

	"gridsight-go/internal/render"
	"gridsight-go/internal/types"
)

// gridsight-tty renders the live grid in a terminal, for headless
// hosts where opening the browser UI is not an option.
func main() {
	var (
		addr = flag.String("addr", "localhost:8888", "gridsight server address")
	)
	flag.Parse()

	url := fmt.Sprintf("ws://%s/ws", *addr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", url, err)
	}
	defer conn.Close()

	if err := termbox.Init(); err != nil {
		log.Fatalf("init terminal: %v", err)
	}
	defer termbox.Close()
	termbox.SetOutputMode(termbox.Output256)

	snapshots := make(chan types.UISnapshot, 4)
	go func() {
		defer close(snapshots)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var probe struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(payload, &probe); err != nil || probe.Type != "snapshot" {
				continue
			}
			var snap types.UISnapshot
			if err := json.Unmarshal(payload, &snap); err != nil {
				continue
			}
			select {
			case snapshots <- snap:
			default:
			}
		}
	}()

	events := make(chan termbox.Event, 4)
	go func() {
		for {
			events <- termbox.PollEvent()
		}
	}()

	_ = conn.WriteJSON(map[string]any{"type": "snapshot_request"})

	redraw := time.NewTicker(50 * time.Millisecond)
	defer redraw.Stop()
	var latest *types.UISnapshot
	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			latest = &snap
		case ev := <-events:
			if ev.Type == termbox.EventKey && (ev.Key == termbox.KeyEsc || ev.Ch == 'q') {
				return
			}
		case <-redraw.C:
			if latest != nil {
				draw(*latest)
				latest = nil
			}
		}
	}
}

func draw(snap types.UISnapshot) {
	_ = termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
	termW, termH := termbox.Size()
	n := snap.GridSize
	if n < 1 {
		return
	}

	// Cells are two columns wide so the grid looks roughly square.
	cellW := termW / (n * 2)
	cellH := (termH - 1) / n
	if cellW < 1 {
		cellW = 1
	}
	if cellH < 1 {
		cellH = 1
	}

	for _, cell := range snap.Cells {
		attr := termbox.Attribute(render.Ansi256(render.StateColor(cell.State, cell.Confidence))) + 1
		for dy := 0; dy < cellH; dy++ {
			for dx := 0; dx < cellW*2; dx++ {
				x := cell.Col*cellW*2 + dx
				y := cell.Row*cellH + dy
				termbox.SetCell(x, y, ' ', termbox.ColorDefault, attr)
			}
		}
	}

	statusLine := fmt.Sprintf("frame %d  grid %dx%d  %d detections  (q to quit)",
		snap.FrameSeq, n, n, len(snap.Detections))
	for i, ch := range statusLine {
		if i >= termW {
			break
		}
		termbox.SetCell(i, termH-1, ch, termbox.ColorWhite, termbox.ColorDefault)
	}

	_ = termbox.Flush()
}
