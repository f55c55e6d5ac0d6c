// Package encoding runs the VAAPI hardware encode for one media file.
//
// The FFmpeg client builds a fixed HEVC command (first video stream, all
// audio, optional subtitles, audio and subtitles copied), writes into a
// hidden partial file next to the destination, and renames it into place only
// after ffmpeg exits cleanly. A destination path therefore never holds a
// truncated encode.
//
// Failures are returned as *EncodeError, classified from the exit status and
// the tail of ffmpeg's output: device initialisation problems, busy devices,
// and signal kills are transient, everything else is permanent.
package encoding
