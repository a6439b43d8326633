package render

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mdp/qrterminal"
	qrcode "github.com/skip2/go-qrcode"
)

const dataURLPrefix = "data:"

// IsImageQR reports whether the QR payload is an already rendered image.
func IsImageQR(payload string) bool {
	return strings.HasPrefix(payload, dataURLPrefix)
}

// QR draws a raw QR payload as half-block characters. Image payloads cannot
// be drawn and are reported as such.
func QR(w io.Writer, payload string) error {
	if payload == "" {
		return errors.New("empty QR payload")
	}
	if IsImageQR(payload) {
		_, err := fmt.Fprintln(w, "QR code is an image; save it with --qr-out and open it to scan.")
		return err
	}
	qrterminal.GenerateHalfBlock(payload, qrterminal.L, w)
	return nil
}

// QRPNG returns the QR as PNG bytes, decoding an image data URL or
// encoding a raw payload.
func QRPNG(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, errors.New("empty QR payload")
	}
	if IsImageQR(payload) {
		meta, data, ok := strings.Cut(strings.TrimPrefix(payload, dataURLPrefix), ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return nil, errors.New("unsupported QR data URL")
		}
		img, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode QR image: %w", err)
		}
		return img, nil
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR: %w", err)
	}
	return png, nil
}

func WriteQRFile(path, payload string) error {
	png, err := QRPNG(payload, 256)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, png, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
