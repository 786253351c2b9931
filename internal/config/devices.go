package config

import "runtime"

// defaultCaptureFormat picks the ffmpeg input device family for the host OS.
func defaultCaptureFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "v4l2"
	}
}

func defaultCaptureDevice(format string) string {
	switch format {
	case "avfoundation":
		return "0:0"
	case "dshow":
		return "video=Integrated Camera"
	case CaptureFormatFile:
		return ""
	default:
		return "/dev/video0"
	}
}
