// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package frame

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/mlnoga/fringe/internal/stats"
)

func NewFrameFromFile(fileName string, id int) (f *Frame, err error) {
	f=NewFrame()
	f.ID=id
	return f, f.ReadFile(fileName)
}

// Reads image data from the named file. The format is detected from the
// content, with JPEG, PNG, GIF, BMP and TIFF supported. Decompresses gzip
// if a .gz or .gzip suffix is present.
func (f *Frame) ReadFile(fileName string) error {
	file, err:=os.Open(fileName)
	if err!=nil { return err }
	defer file.Close()

	var r io.Reader=bufio.NewReader(file)
	f.FileName=fileName

	ext:=strings.ToLower(path.Ext(fileName))
	if ext==".gz" || ext==".gzip" {
		gz, err:=gzip.NewReader(r)
		if err!=nil { return err }
		defer gz.Close()
		r=gz
	}
	return f.Read(r)
}

// Decodes image data from the reader into planar float32 samples in [0,1],
// gathering minimum, maximum and mean for the frame statistics in the same pass
func (f *Frame) Read(r io.Reader) error {
	img, format, err:=image.Decode(r)
	if err!=nil {
		return fmt.Errorf("%d: decoding image: %s", f.ID, err.Error())
	}

	bounds:=img.Bounds()
	width, height:=bounds.Dx(), bounds.Dy()
	if width<=0 || height<=0 {
		return fmt.Errorf("%d: empty %s image", f.ID, format)
	}

	channels:=int32(3)
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		channels=1
	}

	size:=width*height
	f.Naxisn=[]int32{int32(width), int32(height)}
	if channels>1 { f.Naxisn=append(f.Naxisn, channels) }
	f.Pixels=int32(size)*channels
	f.Data=make([]float32, f.Pixels)

	min, max, sum:=float32(math.MaxFloat32), float32(-math.MaxFloat32), float64(0)
	norm:=float32(1.0/65535.0)

	if channels==1 {
		for y:=0; y<height; y++ {
			for x:=0; x<width; x++ {
				r, _, _, _:=img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				gray:=float32(r)*norm
				f.Data[y*width+x]=gray

				if gray<min { min=gray }
				if gray>max { max=gray }
				sum+=float64(gray)
			}
		}
	} else {
		for y:=0; y<height; y++ {
			for x:=0; x<width; x++ {
				r, g, b, _:=img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				rr, gg, bb:=float32(r)*norm, float32(g)*norm, float32(b)*norm
				f.Data[y*width+x       ]=rr
				f.Data[y*width+x+size  ]=gg
				f.Data[y*width+x+size*2]=bb

				gray:=0.2126*rr+0.7152*gg+0.0722*bb
				if gray<min { min=gray }
				if gray>max { max=gray }
				sum+=float64(gray)
			}
		}
	}

	mean:=float32(sum/float64(size))
	f.Stats=stats.NewStatsWithMMM(f.Data, f.Naxisn[0], min, max, mean)
	return nil
}
