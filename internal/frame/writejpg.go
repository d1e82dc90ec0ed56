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
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"
)

// Writes the frame to a JPEG file, mapping sample values from [min,max] to
// [0,1] and applying the given gamma
func (f *Frame) WriteJPGToFile(fileName string, min, max, gamma float32, quality int) error {
	file, err:=os.Create(fileName)
	if err!=nil { return err }
	defer file.Close()

	writer:=bufio.NewWriter(file)
	defer writer.Flush()

	return f.WriteJPG(writer, min, max, gamma, quality)
}

// Writes the frame to JPEG, mapping sample values from [min,max] to [0,1]
// and applying the given gamma. Mono frames encode as grayscale, color
// frames as RGB.
func (f *Frame) WriteJPG(writer io.Writer, min, max, gamma float32, quality int) error {
	if f.Channels()==1 {
		return f.writeMonoJPG(writer, min, max, gamma, quality)
	}
	return f.writeRGBJPG(writer, min, max, gamma, quality)
}

func (f *Frame) writeMonoJPG(writer io.Writer, min, max, gamma float32, quality int) error {
	width, height:=int(f.Width()), int(f.Height())
	img:=image.NewGray(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale:=1.0/(max-min)
	gammaInv:=float64(1.0/gamma)
	for y:=0; y<height; y++ {
		yoffset:=y*width
		for x:=0; x<width; x++ {
			gray:=f.Data[yoffset+x]
			gray=(gray-min)*scale
			// replace NaNs with zeros for export, else JPG output breaks
			if math.IsNaN(float64(gray)) || gray<0 { gray=0 }
			if gray>1 { gray=1 }
			if gammaInv!=1.0 {
				gray=float32(math.Pow(float64(gray), gammaInv))
			}
			img.SetGray(x, y, color.Gray{uint8(gray*255)})
		}
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}

func (f *Frame) writeRGBJPG(writer io.Writer, min, max, gamma float32, quality int) error {
	width, height:=int(f.Width()), int(f.Height())
	size:=width*height
	img:=image.NewRGBA(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale:=1.0/(max-min)
	gammaInv:=float64(1.0/gamma)
	for y:=0; y<height; y++ {
		yoffset:=y*width
		for x:=0; x<width; x++ {
			r:=f.Data[yoffset+x]
			g:=f.Data[yoffset+x+size]
			b:=f.Data[yoffset+x+size*2]
			r=(r-min)*scale
			g=(g-min)*scale
			b=(b-min)*scale
			// replace NaNs with zeros for export, else JPG output breaks
			if math.IsNaN(float64(r)) || r<0 { r=0 }
			if math.IsNaN(float64(g)) || g<0 { g=0 }
			if math.IsNaN(float64(b)) || b<0 { b=0 }
			if r>1 { r=1 }
			if g>1 { g=1 }
			if b>1 { b=1 }
			if gammaInv!=1.0 {
				r=float32(math.Pow(float64(r), gammaInv))
				g=float32(math.Pow(float64(g), gammaInv))
				b=float32(math.Pow(float64(b), gammaInv))
			}
			img.SetRGBA(x, y, color.RGBA{uint8(r*255), uint8(g*255), uint8(b*255), 255})
		}
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}
