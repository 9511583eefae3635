package display

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/ergowatch/internal/pose"
)

const (
	panelPad    = 8
	panelLineH  = 24
	panelScale  = 0.6
	panelWeight = 2
)

// connections are the skeleton edges drawn between landmarks.
var connections = [][2]int{
	{pose.Nose, pose.LeftEyeInner}, {pose.LeftEyeInner, pose.LeftEye}, {pose.LeftEye, pose.LeftEyeOuter}, {pose.LeftEyeOuter, pose.LeftEar},
	{pose.Nose, pose.RightEyeInner}, {pose.RightEyeInner, pose.RightEye}, {pose.RightEye, pose.RightEyeOuter}, {pose.RightEyeOuter, pose.RightEar},
	{pose.MouthLeft, pose.MouthRight},
	{pose.LeftShoulder, pose.RightShoulder},
	{pose.LeftShoulder, pose.LeftElbow}, {pose.LeftElbow, pose.LeftWrist},
	{pose.RightShoulder, pose.RightElbow}, {pose.RightElbow, pose.RightWrist},
	{pose.LeftShoulder, pose.LeftHip}, {pose.RightShoulder, pose.RightHip}, {pose.LeftHip, pose.RightHip},
	{pose.LeftHip, pose.LeftKnee}, {pose.LeftKnee, pose.LeftAnkle},
	{pose.RightHip, pose.RightKnee}, {pose.RightKnee, pose.RightAnkle},
}

// DrawPanel draws lines of text on a half-transparent box at origin.
func DrawPanel(img *gocv.Mat, lines []string, origin image.Point) {
	if len(lines) == 0 || img.Empty() {
		return
	}

	width := 0
	for _, l := range lines {
		size := gocv.GetTextSize(l, gocv.FontHersheySimplex, panelScale, panelWeight)
		if size.X > width {
			width = size.X
		}
	}
	box := image.Rect(origin.X, origin.Y, origin.X+width+2*panelPad, origin.Y+panelLineH*len(lines)+2*panelPad)

	overlay := img.Clone()
	defer overlay.Close()
	gocv.Rectangle(&overlay, box, ColorPanel, -1)
	gocv.AddWeighted(overlay, 0.5, *img, 0.5, 0, img)

	for i, l := range lines {
		pt := image.Pt(origin.X+panelPad, origin.Y+panelPad+(i+1)*panelLineH-6)
		gocv.PutTextWithParams(img, l, pt, gocv.FontHersheySimplex, panelScale, ColorText, panelWeight, gocv.LineAA, false)
	}
}

// DrawVerdict writes the verdict in its colour along the bottom-left edge.
func DrawVerdict(img *gocv.Mat, text string, c color.RGBA) {
	if img.Empty() {
		return
	}
	pt := image.Pt(10, img.Rows()-14)
	gocv.PutTextWithParams(img, text, pt, gocv.FontHersheySimplex, 0.8, c, 2, gocv.LineAA, false)
}

// DrawLandmarks draws the skeleton of a landmark set scaled to the frame.
func DrawLandmarks(img *gocv.Mat, set pose.LandmarkSet) {
	if !set.Present() || len(set) != pose.NumLandmarks || img.Empty() {
		return
	}

	w, h := float64(img.Cols()), float64(img.Rows())
	point := func(i int) image.Point {
		x, y, _, _ := set[i].Values()
		return image.Pt(int(x*w), int(y*h))
	}

	for _, c := range connections {
		gocv.Line(img, point(c[0]), point(c[1]), ColorText, 2)
	}
	for i := range set {
		gocv.Circle(img, point(i), 3, ColorBad, -1)
	}
}

// Render draws the full detection overlay for one frame.
func Render(img *gocv.Mat, set pose.LandmarkSet, s State) {
	DrawLandmarks(img, set)
	DrawPanel(img, s.Lines(), image.Pt(10, 10))
	text, c := Verdict(s.Present, s.Voted)
	DrawVerdict(img, text, c)
}
