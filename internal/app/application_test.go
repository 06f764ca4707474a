package app

import (
	"bytes"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"fyne.io/fyne/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"histeq/internal/failure"
	"histeq/internal/imageio"
	"histeq/internal/logger"
)

type fakeLoader struct {
	img   *imageio.Image
	err   error
	paths *[]string
}

func (f fakeLoader) Load(path string) (*imageio.Image, error) {
	*f.paths = append(*f.paths, path)
	return f.img, f.err
}

type fakeViewer struct {
	titles   []string
	images   []image.Image
	ran      bool
	shutdown bool
}

func (v *fakeViewer) Show(title string, img image.Image) fyne.Window {
	v.titles = append(v.titles, title)
	v.images = append(v.images, img)
	return nil
}

func (v *fakeViewer) Run()      { v.ran = true }
func (v *fakeViewer) Shutdown() { v.shutdown = true }

type harness struct {
	stdout, stderr bytes.Buffer
	paths          []string
	viewer         *fakeViewer
	viewers        int
	app            *Application
}

func newHarness(t *testing.T, img *imageio.Image, loadErr error) *harness {
	t.Helper()
	h := &harness{viewer: &fakeViewer{}}
	h.app = New(Options{
		Stdout: &h.stdout,
		Stderr: &h.stderr,
		Getenv: func(string) string { return "" },
		NewLogger: func(zerolog.Level) logger.Logger {
			return logger.NoOp{}
		},
		NewLoader: func(logger.Logger) ImageLoader {
			return fakeLoader{img: img, err: loadErr, paths: &h.paths}
		},
		NewViewer: func(logger.Logger) Viewer {
			h.viewers++
			return h.viewer
		},
	})
	return h
}

func testImage(t *testing.T) *imageio.Image {
	t.Helper()
	img, err := imageio.New(2, 2, 1, []uint8{0, 64, 128, 255})
	require.NoError(t, err)
	return img
}

func TestHelpPrintsUsage(t *testing.T) {
	h := newHarness(t, testImage(t), nil)

	require.NoError(t, h.app.Run([]string{"-p", "1", "-h"}))
	assert.Contains(t, h.stderr.String(), "Application usage:")
	assert.Contains(t, h.stderr.String(), "  -f : input image file")
	assert.Empty(t, h.stdout.String())
	assert.Empty(t, h.paths)
}

func TestListDevicesDoesNotRunPipeline(t *testing.T) {
	h := newHarness(t, testImage(t), nil)

	require.NoError(t, h.app.Run([]string{"-l"}))
	assert.Contains(t, h.stdout.String(), "Found ")
	assert.Contains(t, h.stdout.String(), "Reference Platform")
	assert.NotContains(t, h.stdout.String(), "Running on")
	assert.Empty(t, h.paths)
}

func TestFullRunReportsAndDisplays(t *testing.T) {
	h := newHarness(t, testImage(t), nil)

	require.NoError(t, h.app.Run([]string{"-f", "photo.pgm", "-x", "--runs", "2"}))
	assert.Equal(t, []string{"photo.pgm"}, h.paths)
	assert.Empty(t, h.stderr.String())

	out := h.stdout.String()
	assert.Contains(t, out, "Running on ")
	assert.Contains(t, out, "Kernel execution time [ns]:")
	assert.Contains(t, out, "Memory transfer time [ns]:")
	assert.Contains(t, out, "------- LUT -------")
	assert.Contains(t, out, "------- Histogram -------")
	assert.Contains(t, out, "------- Cumulative Histogram -------")
	assert.Contains(t, out, "------- Average over 2 run(s) -------")
	assert.NotContains(t, out, "differs from run 1")

	assert.Equal(t, 1, h.viewers)
	assert.Equal(t, []string{"input", "output"}, h.viewer.titles)
	assert.True(t, h.viewer.ran)
	assert.True(t, h.viewer.shutdown)
	require.Len(t, h.viewer.images, 2)
	assert.Equal(t, image.Rect(0, 0, 2, 2), h.viewer.images[1].Bounds())
}

func TestNoDisplaySkipsViewer(t *testing.T) {
	h := newHarness(t, testImage(t), nil)

	require.NoError(t, h.app.Run([]string{"--no-display", "-p", "1"}))
	assert.Zero(t, h.viewers)
	assert.Contains(t, h.stdout.String(), "------- LUT -------")
	assert.NotContains(t, h.stdout.String(), "Average over")
}

func TestDecodeFailureIsReported(t *testing.T) {
	loadErr := failure.Decode("load image", errors.New("missing.pgm: no such file"))
	h := newHarness(t, nil, loadErr)

	err := h.app.Run([]string{"-f", "missing.pgm"})
	require.Error(t, err)
	assert.Equal(t, failure.KindDecode, failure.KindOf(err))
	assert.Equal(t, "ERROR: load image: missing.pgm: no such file\n", h.stderr.String())
	assert.NotContains(t, h.stdout.String(), "Running on")
}

func TestDeviceFailureNamesStatus(t *testing.T) {
	h := newHarness(t, testImage(t), nil)

	err := h.app.Run([]string{"-p", "9"})
	require.Error(t, err)
	assert.Equal(t, failure.KindDevice, failure.KindOf(err))
	assert.Equal(t, "ERROR: GetContext, CL_INVALID_PLATFORM\n", h.stderr.String())
}

func TestConfigFailureIsReported(t *testing.T) {
	h := newHarness(t, testImage(t), nil)

	err := h.app.Run([]string{"--bin-size", "3"})
	require.Error(t, err)
	assert.Equal(t, failure.KindConfig, failure.KindOf(err))
	assert.Contains(t, h.stderr.String(), "ERROR: validate config: invalid bin_size 3")
	assert.Empty(t, h.paths)
}

func TestMissingKernelFileIsConfigError(t *testing.T) {
	h := newHarness(t, testImage(t), nil)

	err := h.app.Run([]string{"-k", filepath.Join(t.TempDir(), "absent.kernels")})
	require.Error(t, err)
	assert.Equal(t, failure.KindConfig, failure.KindOf(err))
	assert.Contains(t, h.stderr.String(), "ERROR: load kernels:")
}

func TestBuildFailurePrintsBuildInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.kernels")
	require.NoError(t, os.WriteFile(path, []byte("not a kernel\n"), 0o644))

	h := newHarness(t, testImage(t), nil)
	err := h.app.Run([]string{"-k", path, "--build-options=-DFAST"})
	require.Error(t, err)
	assert.Equal(t, failure.KindDevice, failure.KindOf(err))

	out := h.stdout.String()
	assert.Contains(t, out, "Build Status: ")
	assert.Contains(t, out, "Build Options:\t -DFAST")
	assert.Contains(t, out, "Build Log:\t ")
	assert.Contains(t, h.stderr.String(), "CL_BUILD_PROGRAM_FAILURE")
}
