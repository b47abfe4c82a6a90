package pose

// EncodeBlock builds a prediction block that decodes back to the given
// detections under the same parameters and ratios: one anchor row per
// detection, display-pixel geometry divided back into model space. Used by
// the synthetic generator and replay sources so recorded detections flow
// through the normal candidate/dedup/decode path.
func EncodeBlock(dets []Detection, params DecoderParams, ratios Ratios) []float32 {
	rowLen := 4 + params.NumClasses + 3*params.NumKeypoints
	block := make([]float32, len(dets)*rowLen)

	for i, det := range dets {
		row := block[i*rowLen : (i+1)*rowLen]

		w := det.Box.Width() / ratios.X
		h := det.Box.Height() / ratios.Y
		cx := (det.Box.X1 + det.Box.X2) / 2 / ratios.X
		cy := (det.Box.Y1 + det.Box.Y2) / 2 / ratios.Y
		row[0] = float32(cx)
		row[1] = float32(cy)
		row[2] = float32(w)
		row[3] = float32(h)

		// All class channels carry the detection score; single-class
		// models have exactly one.
		for c := 0; c < params.NumClasses; c++ {
			row[4+c] = float32(det.Score)
		}

		kpBase := 4 + params.NumClasses
		for k := 0; k < params.NumKeypoints && k < len(det.Keypoints); k++ {
			kp := det.Keypoints[k]
			row[kpBase+k*3+0] = float32(kp.X / ratios.X)
			row[kpBase+k*3+1] = float32(kp.Y / ratios.Y)
			row[kpBase+k*3+2] = float32(kp.Conf)
		}
	}
	return block
}
