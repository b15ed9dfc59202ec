package main

// image module provides the preprocessor which turns raw image bytes
// into the fixed-shape model input tensor
//

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"

	// register decoders, format is sniffed from content
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// FetchImage downloads image bytes from given URL with bounded timeout
func FetchImage(ctx context.Context, iurl string, client *http.Client) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iurl, nil)
	if err != nil {
		return nil, stageError("download", DownloadError, err)
	}
	rsp, err := client.Do(req)
	if err != nil {
		return nil, stageError("download", DownloadError, err)
	}
	defer rsp.Body.Close()
	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		return nil, stageError("download", DownloadError, fmt.Errorf("fetch %s returned status %s", iurl, rsp.Status))
	}
	data, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, stageError("download", DownloadError, err)
	}
	return data, nil
}

// Prepare decodes raw image bytes, resizes them to height x width with
// deterministic CatmullRom resampling, expands a batch dimension of 1
// and maps pixel intensities to [0,1], pure given its input bytes
func Prepare(raw []byte, height, width int) (*Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, userError("prepare", ImageDecodeError, fmt.Errorf("unable to decode image: %w", err))
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	data := make([]float64, height*width*3)
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := dst.RGBAAt(x, y)
			data[i] = float64(c.R) / 255.0
			data[i+1] = float64(c.G) / 255.0
			data[i+2] = float64(c.B) / 255.0
			i += 3
		}
	}
	return &Tensor{Shape: []int{1, height, width, 3}, Data: data}, nil
}
