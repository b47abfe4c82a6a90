package render

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/workfloor-data/activity.report/internal/pose"
	"github.com/workfloor-data/activity.report/internal/pose/pipeline"
)

const (
	jointRadius = 3
	wristRadius = 6
)

// skeleton lists the COCO limb segments as joint index pairs: legs first,
// then torso, arms, and face. Order matches limbColors.
var skeleton = [][2]int{
	{pose.KeypointLeftAnkle, pose.KeypointLeftKnee},
	{pose.KeypointLeftKnee, pose.KeypointLeftHip},
	{pose.KeypointRightAnkle, pose.KeypointRightKnee},
	{pose.KeypointRightKnee, pose.KeypointRightHip},
	{pose.KeypointLeftHip, pose.KeypointRightHip},
	{pose.KeypointLeftShoulder, pose.KeypointLeftHip},
	{pose.KeypointRightShoulder, pose.KeypointRightHip},
	{pose.KeypointLeftShoulder, pose.KeypointRightShoulder},
	{pose.KeypointLeftShoulder, pose.KeypointLeftElbow},
	{pose.KeypointRightShoulder, pose.KeypointRightElbow},
	{pose.KeypointLeftElbow, pose.KeypointLeftWrist},
	{pose.KeypointRightElbow, pose.KeypointRightWrist},
	{pose.KeypointLeftEye, pose.KeypointRightEye},
	{pose.KeypointNose, pose.KeypointLeftEye},
	{pose.KeypointNose, pose.KeypointRightEye},
	{pose.KeypointLeftEye, pose.KeypointLeftEar},
	{pose.KeypointRightEye, pose.KeypointRightEar},
	{pose.KeypointLeftEar, pose.KeypointLeftShoulder},
	{pose.KeypointRightEar, pose.KeypointRightShoulder},
}

// Skeletons renders the pose skeleton for every tracked person. Limbs are
// drawn only when both endpoint joints meet minJointConf; confidently
// observed wrists get an extra ring since they feed the motion judgement.
func Skeletons(img *gocv.Mat, dets []pipeline.TrackedDetection, minJointConf float64, lineThickness int) {
	for _, det := range dets {
		drawSkeleton(img, det.Detection, minJointConf, lineThickness)
	}
}

func drawSkeleton(img *gocv.Mat, det pose.Detection, minJointConf float64, lineThickness int) {
	kps := det.Keypoints
	if len(kps) < pose.NumKeypoints {
		return
	}

	// draw limb lines between joints
	for j, limb := range skeleton {
		a := kps[limb[0]]
		b := kps[limb[1]]
		if a.Conf < minJointConf || b.Conf < minJointConf {
			continue
		}
		gocv.Line(img, image.Pt(int(a.X), int(a.Y)), image.Pt(int(b.X), int(b.Y)),
			limbColors[j], lineThickness)
	}

	// draw circles at skeleton joints
	for j := 0; j < pose.NumKeypoints; j++ {
		if kps[j].Conf < minJointConf {
			continue
		}
		gocv.Circle(img, image.Pt(int(kps[j].X), int(kps[j].Y)),
			jointRadius, jointColors[j], -1)
	}

	// ring the wrists that passed the keypoint threshold at decode time
	if det.LeftWrist != nil {
		gocv.Circle(img, image.Pt(int(det.LeftWrist.X), int(det.LeftWrist.Y)),
			wristRadius, White, lineThickness)
	}
	if det.RightWrist != nil {
		gocv.Circle(img, image.Pt(int(det.RightWrist.X), int(det.RightWrist.Y)),
			wristRadius, White, lineThickness)
	}
}
