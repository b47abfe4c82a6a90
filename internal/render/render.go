// Package render draws activity-tracking overlays onto video frames using
// GoCV: per-track bounding boxes colored by behavior status, pose skeletons,
// and a frame summary banner.
package render

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/workfloor-data/activity.report/internal/pose/pipeline"
)

// Font defines the parameters for rendering text labels with GoCV.
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	// Padding to place around text
	LeftPad   int
	RightPad  int
	TopPad    int
	BottomPad int
}

// DefaultFont returns default font settings.
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		LeftPad:   4,
		RightPad:  4,
		TopPad:    4,
		BottomPad: 6,
	}
}

// boxLabel defines where a track label should be rendered on the source image.
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// TrackBoxes renders a bounding box around every tracked person, colored by
// behavior status, with a track id and motion label above the box.
func TrackBoxes(img *gocv.Mat, dets []pipeline.TrackedDetection, font Font, lineThickness int) {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0, len(dets))

	for _, det := range dets {

		useClr := StatusColor(det.Status)

		boxLeft := int(det.Detection.Box.X1)
		boxTop := int(det.Detection.Box.Y1)
		boxRight := int(det.Detection.Box.X2)
		boxBottom := int(det.Detection.Box.Y2)

		rect := image.Rect(boxLeft, boxTop, boxRight, boxBottom)
		gocv.Rectangle(img, rect, useClr, lineThickness)

		text := fmt.Sprintf("#%d %s %.2f", det.TrackID, det.Status, det.Motion)
		if det.Created {
			text = fmt.Sprintf("#%d new", det.TrackID)
		}
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		labelPos := image.Pt(boxLeft+font.LeftPad, boxTop-font.BottomPad)

		// box the text gets written on
		bRect := image.Rect(boxLeft,
			boxTop-textSize.Y-font.TopPad-font.BottomPad,
			boxLeft+textSize.X+font.LeftPad+font.RightPad, boxTop)

		boxLabels = append(boxLabels, boxLabel{
			rect:    bRect,
			clr:     useClr,
			text:    text,
			textPos: labelPos,
		})
	}

	// draw all labels last so they stay the top most layer and don't get
	// overlapped by neighboring boxes or skeleton lines
	for _, lbl := range boxLabels {
		gocv.Rectangle(img, lbl.rect, lbl.clr, -1)
		gocv.PutTextWithParams(img, lbl.text, lbl.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}

// Banner renders the frame timestamp and status counts in the top-left corner.
func Banner(img *gocv.Mat, result pipeline.FrameResult, font Font) {
	text := fmt.Sprintf("t=%.1fs people=%d working=%d idle=%d",
		result.TimestampSec, result.Counts.Total, result.Counts.Working, result.Counts.Idle)
	textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

	bRect := image.Rect(0, 0,
		textSize.X+font.LeftPad+font.RightPad,
		textSize.Y+font.TopPad+font.BottomPad)
	gocv.Rectangle(img, bRect, Black, -1)
	gocv.PutTextWithParams(img, text, image.Pt(font.LeftPad, textSize.Y+font.TopPad),
		font.Face, font.Scale, font.Color, font.Thickness,
		font.LineType, false)
}

// Overlay draws the full activity overlay for one frame result: skeletons,
// status-colored track boxes, and the summary banner. minJointConf hides
// joints and limbs the model was not confident about.
func Overlay(img *gocv.Mat, result pipeline.FrameResult, minJointConf float64) {
	font := DefaultFont()
	Skeletons(img, result.Detections, minJointConf, 2)
	TrackBoxes(img, result.Detections, font, 2)
	Banner(img, result, font)
}
