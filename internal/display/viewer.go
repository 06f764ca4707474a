// Package display shows the input and output images in their own windows.
package display

import (
	"image"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"

	"histeq/internal/logger"
)

const (
	AppID = "io.histeq.viewer"

	maxWindowWidth  = 1200
	maxWindowHeight = 900
)

// Viewer owns the fyne application and its image windows. Closing any window
// or pressing ESC in one quits the viewer.
type Viewer struct {
	app     fyne.App
	log     logger.Logger
	mu      sync.Mutex
	windows []fyne.Window
	done    chan struct{}
	once    sync.Once
}

func NewViewer(log logger.Logger) *Viewer {
	return NewViewerWithApp(app.NewWithID(AppID), log)
}

// NewViewerWithApp lets tests supply fyne's test application.
func NewViewerWithApp(a fyne.App, log logger.Logger) *Viewer {
	if log == nil {
		log = logger.NoOp{}
	}
	return &Viewer{app: a, log: log, done: make(chan struct{})}
}

// Show opens a window titled title displaying img at its original size.
func (v *Viewer) Show(title string, img image.Image) fyne.Window {
	picture := canvas.NewImageFromImage(img)
	picture.FillMode = canvas.ImageFillOriginal

	bounds := img.Bounds()
	width, height := float32(bounds.Dx()), float32(bounds.Dy())
	picture.SetMinSize(fyne.NewSize(width, height))

	// Scroll when the image does not fit the window
	scroll := container.NewScroll(picture)

	window := v.app.NewWindow(title)
	window.SetContent(scroll)
	window.Resize(fyne.NewSize(min(width, maxWindowWidth), min(height, maxWindowHeight)))
	window.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if ev.Name == fyne.KeyEscape {
			v.log.Debug("Viewer", "escape pressed", map[string]interface{}{"window": title})
			v.Quit()
		}
	})
	window.SetOnClosed(func() {
		v.log.Debug("Viewer", "window closed", map[string]interface{}{"window": title})
		v.Quit()
	})

	v.mu.Lock()
	v.windows = append(v.windows, window)
	v.mu.Unlock()

	window.Show()
	return window
}

// Run blocks in the fyne event loop until the viewer quits.
func (v *Viewer) Run() {
	v.app.Run()
}

// Quit closes every window and stops the event loop. It is safe to call
// from any goroutine and more than once.
func (v *Viewer) Quit() {
	v.once.Do(func() {
		close(v.done)
		v.log.Info("Viewer", "closing windows", nil)
		fyne.Do(func() {
			v.app.Quit()
		})
	})
}

// Done is closed once Quit has been called.
func (v *Viewer) Done() <-chan struct{} {
	return v.done
}

func (v *Viewer) Shutdown() {
	v.Quit()
}
