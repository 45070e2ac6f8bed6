package tui

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// imageURL accepts only absolute web links so a listing cannot launch a
// local file or another scheme handler.
func imageURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("not a web image link: %q", raw)
	}
	return u.String(), nil
}

// openImage opens a listing image in the default browser.
func openImage(raw string) error {
	link, err := imageURL(raw)
	if err != nil {
		return err
	}

	var cmd string
	var args []string
	switch runtime.GOOS {
	case "windows":
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler"}
	case "darwin":
		cmd = "open"
	default:
		cmd = "xdg-open"
	}
	args = append(args, link)
	return exec.Command(cmd, args...).Start()
}
