// File: internal/executor/executor.go

// Package executor drives a real browser surface through the Chrome DevTools
// Protocol. It is the device boundary: every coordinate it receives is
// already in device pixels, and it reports the live viewport resolution so
// the mapping layer can detect geometry changes between capture and dispatch.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/quantum-agi/sdk-go/api/schemas"
	"github.com/quantum-agi/sdk-go/internal/config"
)

// wheelPixelsPerUnit converts a scroll amount (abstract "notches") into CDP
// wheel delta pixels.
const wheelPixelsPerUnit = 100

// dragSteps is the number of intermediate mouse-move events during a drag.
const dragSteps = 12

// Browser executes actions against a Chrome instance it owns.
type Browser struct {
	cfg    config.ExecutorConfig
	logger *zap.Logger

	browserCtx  context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// NewBrowser launches Chrome with the configured viewport and, when a start
// URL is set, navigates to it. Close must be called to tear the browser down.
func NewBrowser(ctx context.Context, cfg config.ExecutorConfig, logger *zap.Logger) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	b := &Browser{
		cfg:         cfg,
		logger:      logger.Named("executor"),
		browserCtx:  browserCtx,
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
	}

	boot := []chromedp.Action{chromedp.EmulateViewport(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight))}
	if cfg.StartURL != "" {
		boot = append(boot, chromedp.Navigate(cfg.StartURL))
	}
	if err := chromedp.Run(browserCtx, boot...); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return b, nil
}

// Close tears down the browser process.
func (b *Browser) Close() {
	b.cancelCtx()
	b.cancelAlloc()
}

// run executes chromedp actions on the browser's context while honoring the
// caller's deadline and cancellation.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(b.browserCtx)
	defer cancel()
	if d, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(runCtx, d)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Capture grabs a PNG screenshot along with the viewport resolution it was
// taken at, in one protocol round trip so the two cannot disagree.
func (b *Browser) Capture(ctx context.Context) (schemas.Observation, error) {
	var png []byte
	var res schemas.Resolution

	err := b.run(ctx, chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			r, err := viewportResolution(ctx)
			if err != nil {
				return err
			}
			res = r
			return nil
		}),
		chromedp.CaptureScreenshot(&png),
	})
	if err != nil {
		return schemas.Observation{}, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return schemas.Observation{PNG: png, Resolution: res, CapturedAt: time.Now().UTC()}, nil
}

// Resolution reports the current viewport resolution without capturing.
func (b *Browser) Resolution(ctx context.Context) (schemas.Resolution, error) {
	var res schemas.Resolution
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		r, err := viewportResolution(ctx)
		if err != nil {
			return err
		}
		res = r
		return nil
	}))
	if err != nil {
		return schemas.Resolution{}, fmt.Errorf("failed to read viewport resolution: %w", err)
	}
	return res, nil
}

func viewportResolution(ctx context.Context) (schemas.Resolution, error) {
	_, _, _, _, cssVisualViewport, _, err := page.GetLayoutMetrics().Do(ctx)
	if err != nil {
		return schemas.Resolution{}, err
	}
	if cssVisualViewport == nil {
		return schemas.Resolution{}, fmt.Errorf("layout metrics returned no visual viewport")
	}
	res := schemas.Resolution{
		Width:  int(cssVisualViewport.ClientWidth),
		Height: int(cssVisualViewport.ClientHeight),
	}
	if !res.Valid() {
		return schemas.Resolution{}, fmt.Errorf("layout metrics returned degenerate resolution %dx%d", res.Width, res.Height)
	}
	return res, nil
}

// Execute performs one action. Coordinates are device pixels. Control actions
// (screenshot, finish, fail, confirm) are no-ops at the device.
func (b *Browser) Execute(ctx context.Context, action schemas.Action) error {
	b.logger.Debug("Executing action", zap.String("action", action.String()))

	switch action.Kind {
	case schemas.ActionClick:
		return b.click(ctx, action.X, action.Y, buttonFor(action.Button), 1)
	case schemas.ActionDoubleClick:
		return b.click(ctx, action.X, action.Y, "left", 2)
	case schemas.ActionRightClick:
		return b.click(ctx, action.X, action.Y, "right", 1)
	case schemas.ActionTypeText:
		return b.typeText(ctx, action.Text)
	case schemas.ActionKeyPress:
		return b.keyPress(ctx, action.Key)
	case schemas.ActionScroll:
		return b.scroll(ctx, action)
	case schemas.ActionDrag:
		return b.drag(ctx, action)
	case schemas.ActionWait:
		return b.run(ctx, chromedp.Sleep(action.Duration()))
	case schemas.ActionScreenshot, schemas.ActionFinish, schemas.ActionFail, schemas.ActionConfirm:
		return nil
	default:
		return fmt.Errorf("unsupported action kind %q", action.Kind)
	}
}

func buttonFor(name string) string {
	switch name {
	case "", "left":
		return "left"
	case "right", "middle":
		return name
	default:
		return "left"
	}
}

func (b *Browser) click(ctx context.Context, x, y int, button string, count int) error {
	fx, fy := float64(x), float64(y)
	return b.run(ctx, chromedp.Tasks{
		chromedp.MouseEvent(input.MouseMoved, fx, fy),
		chromedp.MouseEvent(input.MousePressed, fx, fy,
			chromedp.Button(button), chromedp.ClickCount(count)),
		chromedp.MouseEvent(input.MouseReleased, fx, fy,
			chromedp.Button(button), chromedp.ClickCount(count)),
	})
}

// typeText inserts the text directly into the focused element. Insertion is
// used instead of per-key synthesis so arbitrary unicode arrives intact.
func (b *Browser) typeText(ctx context.Context, text string) error {
	interval := b.cfg.TypeInterval
	if interval <= 0 {
		return b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			return input.InsertText(text).Do(ctx)
		}))
	}
	// Chunked insertion paces the typing so reactive pages see input events
	// at a plausible rate.
	return b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, r := range text {
			if err := input.InsertText(string(r)).Do(ctx); err != nil {
				return err
			}
			if err := chromedp.Sleep(interval).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	}))
}

// keyPress handles single keys and modifier combinations like "ctrl+shift+t".
func (b *Browser) keyPress(ctx context.Context, combo string) error {
	key, modifiers, err := parseKeyCombo(combo)
	if err != nil {
		return err
	}
	return b.run(ctx, chromedp.KeyEvent(key, chromedp.KeyModifiers(modifiers...)))
}

func (b *Browser) scroll(ctx context.Context, action schemas.Action) error {
	amount := action.Amount
	if amount <= 0 {
		amount = 3
	}
	var dx, dy float64
	switch action.Direction {
	case "up":
		dy = -float64(amount * wheelPixelsPerUnit)
	case "down":
		dy = float64(amount * wheelPixelsPerUnit)
	case "left":
		dx = -float64(amount * wheelPixelsPerUnit)
	case "right":
		dx = float64(amount * wheelPixelsPerUnit)
	default:
		return fmt.Errorf("unsupported scroll direction %q", action.Direction)
	}

	return b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, float64(action.X), float64(action.Y)).
			WithDeltaX(dx).
			WithDeltaY(dy).
			Do(ctx)
	}))
}

// drag presses at the start point, moves through interpolated waypoints over
// the configured duration, and releases at the end point.
func (b *Browser) drag(ctx context.Context, action schemas.Action) error {
	sx, sy := float64(action.StartX), float64(action.StartY)
	ex, ey := float64(action.EndX), float64(action.EndY)

	pause := b.cfg.DragDuration / time.Duration(dragSteps)
	if pause <= 0 {
		pause = 10 * time.Millisecond
	}

	return b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := chromedp.MouseEvent(input.MouseMoved, sx, sy).Do(ctx); err != nil {
			return err
		}
		if err := chromedp.MouseEvent(input.MousePressed, sx, sy, chromedp.Button("left")).Do(ctx); err != nil {
			return err
		}
		for i := 1; i <= dragSteps; i++ {
			t := float64(i) / float64(dragSteps)
			mx := sx + (ex-sx)*t
			my := sy + (ey-sy)*t
			if err := chromedp.MouseEvent(input.MouseMoved, mx, my, chromedp.ButtonType(input.Left)).Do(ctx); err != nil {
				return err
			}
			if err := chromedp.Sleep(pause).Do(ctx); err != nil {
				return err
			}
		}
		return chromedp.MouseEvent(input.MouseReleased, ex, ey, chromedp.Button("left")).Do(ctx)
	}))
}
