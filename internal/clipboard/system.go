package clipboard

import (
	"fmt"
	"runtime"

	atotto "github.com/atotto/clipboard"
)

// System is the desktop clipboard. On Linux it needs xclip, xsel or
// wl-clipboard on PATH.
type System struct{}

func NewSystem() (*System, error) {
	if atotto.Unsupported {
		return nil, fmt.Errorf("clipboard operations not supported on %s", runtime.GOOS)
	}
	return &System{}, nil
}

func (*System) ReadAll() (string, error) {
	return atotto.ReadAll()
}

func (*System) WriteAll(text string) error {
	return atotto.WriteAll(text)
}
