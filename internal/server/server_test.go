package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/digitpad/internal/canvas"
	"github.com/born-ml/digitpad/internal/data"
	"github.com/born-ml/digitpad/internal/inference"
	"github.com/born-ml/digitpad/internal/logging"
	"github.com/born-ml/digitpad/internal/session"
)

type fakeClassifier struct {
	status  session.Status
	pred    inference.Prediction
	err     error
	surface canvas.Surface
}

func (f *fakeClassifier) Status() session.Status { return f.status }

func (f *fakeClassifier) PredictSurface(s canvas.Surface) (inference.Prediction, error) {
	f.surface = s
	return f.pred, f.err
}

func testOptions() Options {
	return Options{
		LogLevel:  "off",
		BodyLimit: "1M",
		Canvas:    CanvasDefaults{Width: 56, Height: 56, StrokeWidth: 4, MaxSide: 128},
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func serve(t *testing.T, c Classifier, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	return serveWith(t, c, testOptions(), method, path, contentType, body)
}

func serveWith(t *testing.T, c Classifier, opts Options, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	e := BuildServer(c, opts)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestApi(t *testing.T) {
	assert.Equal(t, "/api/status/", api("status"))
	assert.Equal(t, "/api/status/", api("status/"))
}

func TestGetStatus(t *testing.T) {
	fake := &fakeClassifier{status: session.Status{ID: "abc", Started: true, Iteration: 3, NumBatches: 150, BatchSize: 64, Loss: 1.5}}

	for _, path := range []string{"/api/status/", "/api/status"} {
		t.Run(path, func(t *testing.T) {
			rec := serve(t, fake, http.MethodGet, path, "", nil)
			require.Equal(t, http.StatusOK, rec.Code)

			var got session.Status
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, fake.status, got)
		})
	}
}

func TestPostPredict_ok(t *testing.T) {
	pred := inference.Prediction{Class: 2}
	pred.Probabilities[2] = 0.75
	pred.Probabilities[5] = 0.25
	fake := &fakeClassifier{pred: pred}

	img := image.NewGray(image.Rect(0, 0, 28, 28))
	rec := serve(t, fake, http.MethodPost, "/api/predict/", "image/png", encodePNG(t, img))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var got PredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Class)
	assert.Len(t, got.Probabilities, inference.NumClasses)
	assert.InDelta(t, 75.0, got.Percentages[2], 1e-9)
	require.NotEmpty(t, got.Ranked)
	assert.Equal(t, 2, got.Ranked[0].Class)
	assert.Equal(t, 5, got.Ranked[1].Class)

	require.NotNil(t, fake.surface)
	snap, err := fake.surface.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 28, 28), snap.Bounds())
}

func TestPostPredict_undecodable(t *testing.T) {
	fake := &fakeClassifier{}
	rec := serve(t, fake, http.MethodPost, "/api/predict/", "image/png", []byte("not an image"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, fake.surface)

	var msg ErrorMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "bad request", msg.Reason)
	assert.NotEmpty(t, msg.Advice)
}

func TestPostPredict_errorMapping(t *testing.T) {
	img := encodePNG(t, image.NewGray(image.Rect(0, 0, 8, 8)))

	for name, testcase := range map[string]struct {
		err  error
		want int
	}{
		"not ready":  {err: inference.ErrInferenceNotReady, want: http.StatusServiceUnavailable},
		"closed":     {err: session.ErrClosed, want: http.StatusServiceUnavailable},
		"preprocess": {err: fmt.Errorf("%w: empty", canvas.ErrPreprocess), want: http.StatusBadRequest},
		"unexpected": {err: errors.New("boom"), want: http.StatusInternalServerError},
	} {
		t.Run(name, func(t *testing.T) {
			fake := &fakeClassifier{err: testcase.err}
			rec := serve(t, fake, http.MethodPost, "/api/predict/", "image/png", img)
			assert.Equal(t, testcase.want, rec.Code)
		})
	}
}

func TestPostStrokes(t *testing.T) {
	t.Run("defaults fill missing geometry", func(t *testing.T) {
		fake := &fakeClassifier{}
		body := `{"strokes": [[{"x": 10, "y": 10}, {"x": 40, "y": 40}]]}`
		rec := serve(t, fake, http.MethodPost, "/api/strokes/", "application/json", []byte(body))
		require.Equal(t, http.StatusOK, rec.Code)

		snap, err := fake.surface.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 56, 56), snap.Bounds())

		// the stroke passes through the centre; the corner stays blank.
		r, _, _, _ := snap.At(25, 25).RGBA()
		assert.NotZero(t, r)
		r, _, _, _ = snap.At(55, 0).RGBA()
		assert.Zero(t, r)
	})

	t.Run("explicit geometry", func(t *testing.T) {
		fake := &fakeClassifier{}
		body := `{"width": 100, "height": 80, "stroke_width": 6, "strokes": []}`
		rec := serve(t, fake, http.MethodPost, "/api/strokes/", "application/json", []byte(body))
		require.Equal(t, http.StatusOK, rec.Code)

		snap, err := fake.surface.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 100, 80), snap.Bounds())
	})

	for name, body := range map[string]string{
		"malformed json":  `{"strokes": [`,
		"unknown field":   `{"colour": "red"}`,
		"negative width":  `{"width": -3}`,
		"negative stroke": `{"stroke_width": -1}`,
	} {
		t.Run(name, func(t *testing.T) {
			fake := &fakeClassifier{}
			rec := serve(t, fake, http.MethodPost, "/api/strokes/", "application/json", []byte(body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, fake.surface)
		})
	}
}

// pngHeader returns the signature and IHDR chunk of a width x height 8-bit
// grey PNG. It carries no pixel data.
func pngHeader(width, height uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8] = 8 // bit depth; colour type, compression, filter and interlace stay 0

	buf := new(bytes.Buffer)
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(buf, binary.BigEndian, uint32(len(ihdr)))
	crc := crc32.NewIEEE()
	io.MultiWriter(buf, crc).Write(append([]byte("IHDR"), ihdr...))
	binary.Write(buf, binary.BigEndian, crc.Sum32())
	return buf.Bytes()
}

func TestPostPredict_oversizedImage(t *testing.T) {
	for name, body := range map[string][]byte{
		"header claims 50000x50000": pngHeader(50000, 50000),
		"wider than max side":       encodePNG(t, image.NewGray(image.Rect(0, 0, 129, 8))),
	} {
		t.Run(name, func(t *testing.T) {
			fake := &fakeClassifier{}
			rec := serve(t, fake, http.MethodPost, "/api/predict/", "image/png", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, fake.surface)

			var msg ErrorMessage
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
			assert.Contains(t, msg.Advice, "128")
		})
	}

	t.Run("max side itself is accepted", func(t *testing.T) {
		fake := &fakeClassifier{}
		body := encodePNG(t, image.NewGray(image.Rect(0, 0, 128, 128)))
		rec := serve(t, fake, http.MethodPost, "/api/predict/", "image/png", body)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotNil(t, fake.surface)
	})
}

func TestPostStrokes_bounds(t *testing.T) {
	for name, body := range map[string]string{
		"huge canvas": `{"width": 100000, "height": 100000}`,
		"too wide":    `{"width": 129, "height": 10}`,
		"too tall":    `{"width": 10, "height": 129}`,
	} {
		t.Run(name, func(t *testing.T) {
			fake := &fakeClassifier{}
			rec := serve(t, fake, http.MethodPost, "/api/strokes/", "application/json", []byte(body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, fake.surface)
		})
	}

	t.Run("far apart points finish and ink the crossing", func(t *testing.T) {
		fake := &fakeClassifier{}
		body := `{"strokes": [[{"x": -200000000, "y": 28}, {"x": 200000000, "y": 28}]]}`

		begin := time.Now()
		rec := serve(t, fake, http.MethodPost, "/api/strokes/", "application/json", []byte(body))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Less(t, time.Since(begin), 5*time.Second)

		snap, err := fake.surface.Snapshot()
		require.NoError(t, err)
		for _, x := range []int{0, 28, 55} {
			r, _, _, _ := snap.At(x, 28).RGBA()
			assert.NotZero(t, r, "x=%d", x)
		}
	})
}

func TestLogHandlerFunc(t *testing.T) {
	logs := new(bytes.Buffer)
	logger := log.New("test")
	logger.SetOutput(logs)
	logger.SetHeader("${level}")

	opts := testOptions()
	opts.LogLevel = "info"
	opts.Logger = logger

	pred := inference.Prediction{Class: 7}
	pred.Probabilities[7] = 1
	fake := &fakeClassifier{status: session.Status{ID: "session-1234"}, pred: pred}

	rec := serveWith(t, fake, opts, http.MethodPost, "/api/predict/", "image/png", encodePNG(t, image.NewGray(image.Rect(0, 0, 28, 28))))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, logs.String(), "< [session session-1234] POST /api/predict/")
	assert.Contains(t, logs.String(), "> [session session-1234] POST /api/predict/: 200 class 7")

	logs.Reset()
	rec = serveWith(t, fake, opts, http.MethodPost, "/api/predict/", "image/png", []byte("not an image"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, logs.String(), "> [session session-1234] POST /api/predict/: 400 -")
}

func TestBodyLimit(t *testing.T) {
	fake := &fakeClassifier{}
	body := strings.Repeat("x", 2<<20)
	rec := serve(t, fake, http.MethodPost, "/api/predict/", "image/png", []byte(body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Nil(t, fake.surface)
}

func TestWithSession(t *testing.T) {
	s, err := session.New(
		session.WithSeed(1),
		session.WithLogger(logging.Discard()),
		session.WithTraining(64, 2),
	)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	img := image.NewGray(image.Rect(0, 0, 28, 28))
	for y := 4; y < 24; y++ {
		img.SetGray(14, y, color.Gray{Y: 255})
	}
	body := encodePNG(t, img)

	rec := serve(t, s, http.MethodPost, "/api/predict/", "image/png", body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	_, err = s.Train(context.Background(), data.Constant{Class: 4})
	require.NoError(t, err)

	rec = serve(t, s, http.MethodGet, "/api/status/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st session.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Trained)
	assert.Equal(t, 2, st.Iteration)

	rec = serve(t, s, http.MethodPost, "/api/predict/", "image/png", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var got PredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.GreaterOrEqual(t, got.Class, 0)
	assert.Less(t, got.Class, inference.NumClasses)
	var sum float32
	for _, p := range got.Probabilities {
		sum += p
	}
	assert.InDelta(t, 1, sum, 1e-3)
}
