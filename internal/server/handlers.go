package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/born-ml/digitpad/internal/canvas"
	"github.com/born-ml/digitpad/internal/inference"
	"github.com/born-ml/digitpad/internal/session"
)

// Classifier is the part of a session the handlers use.
type Classifier interface {
	Status() session.Status
	PredictSurface(canvas.Surface) (inference.Prediction, error)
}

// PredictionResponse is the JSON body of a successful prediction.
type PredictionResponse struct {
	Class         int                `json:"class"`
	Probabilities []float32          `json:"probabilities"`
	Percentages   []float64          `json:"percentages"`
	Ranked        []inference.Ranked `json:"ranked"`
}

func composePrediction(p inference.Prediction) PredictionResponse {
	pct := p.Percentages()
	return PredictionResponse{
		Class:         p.Class,
		Probabilities: p.Probabilities[:],
		Percentages:   pct[:],
		Ranked:        p.Ranked(),
	}
}

// StrokesRequest is the JSON body of POST /api/strokes/.
//
// Strokes are polylines in surface pixels. Zero sizes fall back to the
// server's canvas defaults.
type StrokesRequest struct {
	Width       int              `json:"width"`
	Height      int              `json:"height"`
	StrokeWidth float64          `json:"stroke_width"`
	Strokes     [][]canvas.Point `json:"strokes"`
}

// DefaultMaxSide bounds image sides when CanvasDefaults.MaxSide is zero.
const DefaultMaxSide = 4096

// CanvasDefaults is the surface geometry used when a request leaves it out.
type CanvasDefaults struct {
	Width       int
	Height      int
	StrokeWidth float64

	// largest width or height accepted for drawn and uploaded images
	MaxSide int
}

func (d CanvasDefaults) maxSide() int {
	if d.MaxSide <= 0 {
		return DefaultMaxSide
	}
	return d.MaxSide
}

// checkSize rejects images the server will not allocate.
func (d CanvasDefaults) checkSize(width, height int) error {
	if limit := d.maxSide(); width > limit || height > limit {
		return BadRequest(
			fmt.Sprintf("width and height must be at most %d", limit),
			fmt.Errorf("%w: image size %dx%d exceeds %d", canvas.ErrPreprocess, width, height, limit),
		)
	}
	return nil
}

func GetStatusHandler(c Classifier) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, c.Status())
	}
}

// PostPredictHandler classifies a PNG or JPEG request body.
//
// The image header is checked against the size limit before any pixels are
// decoded.
func PostPredictHandler(c Classifier, defaults CanvasDefaults) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		body, err := io.ReadAll(ctx.Request().Body)
		if err != nil {
			return err
		}
		head, _, err := image.DecodeConfig(bytes.NewReader(body))
		if err != nil {
			return BadRequest("post a PNG or JPEG image of a digit", err)
		}
		if err := defaults.checkSize(head.Width, head.Height); err != nil {
			return err
		}
		img, format, err := image.Decode(bytes.NewReader(body))
		if err != nil {
			return BadRequest("post a PNG or JPEG image of a digit", err)
		}
		ctx.Logger().Debugf("decoded %s image %v", format, img.Bounds())
		return predict(ctx, c, canvas.FromImage(img))
	}
}

// PostStrokesHandler renders strokes onto a fresh raster and classifies it.
func PostStrokesHandler(c Classifier, defaults CanvasDefaults) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var req StrokesRequest
		dec := json.NewDecoder(ctx.Request().Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return BadRequest("post {\"width\", \"height\", \"stroke_width\", \"strokes\": [[{\"x\", \"y\"}, ...]]}", err)
		}

		if req.Width == 0 {
			req.Width = defaults.Width
		}
		if req.Height == 0 {
			req.Height = defaults.Height
		}
		if req.StrokeWidth == 0 {
			req.StrokeWidth = defaults.StrokeWidth
		}
		if err := defaults.checkSize(req.Width, req.Height); err != nil {
			return err
		}

		raster, err := canvas.NewRaster(req.Width, req.Height, canvas.WithStrokeWidth(req.StrokeWidth))
		if err != nil {
			return BadRequest("width, height and stroke_width must be positive", err)
		}
		for _, stroke := range req.Strokes {
			raster.Stroke(stroke...)
		}
		return predict(ctx, c, raster)
	}
}

func predict(ctx echo.Context, c Classifier, surface canvas.Surface) error {
	pred, err := c.PredictSurface(surface)
	if err != nil {
		switch {
		case errors.Is(err, inference.ErrInferenceNotReady):
			return ServiceUnavailable("the model is still training; retry later", err)
		case errors.Is(err, session.ErrClosed):
			return ServiceUnavailable("the session is shutting down", err)
		case errors.Is(err, canvas.ErrPreprocess):
			return BadRequest("the image is empty or malformed", err)
		default:
			return InternalServerError(err)
		}
	}
	ctx.Set(predictedClassKey, pred.Class)
	return ctx.JSON(http.StatusOK, composePrediction(pred))
}
