package lang

import (
	"errors"
	"strings"

	"github.com/abadojack/whatlanggo"
)

var ErrUndetected = errors.New("language not detected")

// WhatlangDetector adapts whatlanggo to Detector.
type WhatlangDetector struct{}

func (WhatlangDetector) Detect(text string) (string, error) {
	info := whatlanggo.Detect(text)
	if info.Lang < 0 {
		return "", ErrUndetected
	}
	if info.Lang == whatlanggo.Eng {
		return "en", nil
	}
	return strings.ToLower(info.Lang.String()), nil
}
