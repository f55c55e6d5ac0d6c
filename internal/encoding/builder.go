package encoding

import "strconv"

// buildArgs assembles the fixed VAAPI command writing to output.
func (f *FFmpeg) buildArgs(input, output string) []string {
	args := make([]string, 0, 40)
	args = append(args, "-hide_banner", "-nostdin", "-y")
	if f.device != "" {
		args = append(args, "-vaapi_device", f.device)
	}
	args = append(args,
		"-hwaccel", "vaapi",
		"-hwaccel_output_format", "vaapi",
		"-i", input,
		"-map", "0:v:0",
		"-map", "0:a",
		"-map", "0:s?",
		"-c:v", f.codec,
		"-qp", strconv.Itoa(f.qp),
		"-c:a", "copy",
		"-c:s", "copy",
	)
	args = append(args, f.extraArgs...)
	args = append(args, "-progress", "pipe:1", "-nostats", output)
	return args
}
