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


package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"

	"github.com/mlnoga/fringe/internal/calib"
	"github.com/mlnoga/fringe/internal/frame"
	"github.com/mlnoga/fringe/internal/measure"
	"github.com/mlnoga/fringe/internal/ops"
	"github.com/mlnoga/fringe/internal/ops/fit"
	"github.com/mlnoga/fringe/internal/ops/pre"
	"github.com/mlnoga/fringe/internal/stats"
	"github.com/mlnoga/fringe/web"
)

// Server-wide measurement defaults. Requests start from a copy of these and
// override individual fields via form parameters.
var defaults=measure.NewSettings()

// Serve runs the REST API server on the given port. A non-empty chroot path
// or a non-negative setuid id lock the process into a sandbox first.
func Serve(port int, chroot string, setuid int, settings *measure.Settings) {
	if settings!=nil { defaults=settings }
	fmt.Printf("Serving on %s with %d logical cores and %d MiB physical memory\n",
		cpuid.CPU.BrandName, cpuid.CPU.LogicalCores, memory.TotalMemory()/1024/1024)
	MakeSandbox(chroot, setuid)

	r := newRouter()
	r.Run(fmt.Sprintf(":%d", port)) // listen and serve on 0.0.0.0:port
}

func newRouter() *gin.Engine {
	r := gin.Default()
	r.MaxMultipartMemory = defaults.MaxUploadMB<<20
	r.Use(limitUploadSize)

	r.GET("/",        getIndex)
	r.GET("/ping",    getPing)
	r.GET("/healthz", getHealthz)
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.POST("/band",     postBand)
			v1.POST("/spacing",  postSpacing)
			v1.POST("/autocorr", postAutocorr)
		}
	}
	return r
}

// rejects oversized uploads before the handler reads them. Chunked requests
// without a length are backstopped by the capped body reader.
func limitUploadSize(c *gin.Context) {
	maxBytes:=defaults.MaxUploadMB<<20
	if c.Request.ContentLength>maxBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
			gin.H{"error": fmt.Sprintf("upload size exceeds %d MB limit", defaults.MaxUploadMB) } )
		return
	}
	c.Request.Body=http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	c.Next()
}

func getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func getHealthz(c *gin.Context) {
	c.JSON(200, gin.H{
		"status": "ok",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m,err:=json.MarshalIndent(args, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// measureUpload decodes the multipart `file` into a frame and runs the given
// operator steps over it with a fresh context writing to the server log
func measureUpload(c *gin.Context, s *measure.Settings, steps ...ops.Operator) (f *frame.Frame, err error) {
	fileHeader, err:=c.FormFile("file")
	if err!=nil { return nil, err }
	file, err:=fileHeader.Open()
	if err!=nil { return nil, err }
	defer file.Close()

	logWriter:=io.Writer(os.Stdout)
	fmt.Fprintf(logWriter, "Received %s (%d bytes)\n", fileHeader.Filename, fileHeader.Size)

	f=frame.NewFrame()
	f.FileName=fileHeader.Filename
	if err=f.Read(file); err!=nil { return nil, err }

	oc:=ops.NewContext(logWriter, s, stats.LSEstimator)
	promises, err:=ops.NewOpSequence(steps...).MakePromises([]ops.Promise{
		func() (*frame.Frame, error) { return f, nil },
	}, oc)
	if err!=nil { return nil, err }
	return promises[0]()
}

type postBandArgs struct {
	ThresholdRatio *float32 `form:"thresholdRatio" json:"thresholdRatio"`
	MaxDimension   *int     `form:"maxDimension"   json:"maxDimension"`
	PixelSize      *float64 `form:"pixelSize"      json:"pixelSize"`
}

func postBand(c *gin.Context)  {
	var args postBandArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	printArgs(os.Stdout, "Band arguments:\n", "\n", args)

	if args.PixelSize!=nil && !(*args.PixelSize>0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pixelSize must be positive when provided" } )
		return
	}
	s:=*defaults
	if args.ThresholdRatio!=nil { s.BandThreshold=*args.ThresholdRatio }
	if args.MaxDimension!=nil   { s.MaxDimension =*args.MaxDimension }
	if err:=s.Validate(); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}

	f, err:=measureUpload(c, &s,
		pre.NewOpGrayDefault(), pre.NewOpResizeDefault(),
		fit.NewOpProfileDefault(), fit.NewOpBandWidthDefault())
	if(err!=nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}

	m:=f.Measure
	if !m.Ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": m.Reason.String() } )
		return
	}
	if args.PixelSize!=nil {
		tf:=&calib.Transform{Scale: *args.PixelSize}
		tf.Apply(m, 0, 0)
	}

	res:=gin.H{
		"widthPx":    m.WidthPx,
		"runStart":   m.RunStart,
		"runEnd":     m.RunEnd,
		"resized":    f.Resized,
		"dimensions": gin.H{"width": f.Width(), "height": f.Height()},
	}
	if m.Refined {
		res["centerPx"]      =m.CenterPx
		res["refinedWidthPx"]=m.RefinedWidthPx
	}
	if m.HasPhysical {
		res["widthMm"]  =m.WidthMm
		res["pixelSize"]=*args.PixelSize
	}
	c.JSON(http.StatusOK, res)
}

type postSpacingArgs struct {
	PeakThreshold *float32 `form:"peakThreshold" json:"peakThreshold"`
	MaxStdRatio   *float32 `form:"maxStdRatio"   json:"maxStdRatio"`
	MinPeaks      *int     `form:"minPeaks"      json:"minPeaks"`
	MaxDimension  *int     `form:"maxDimension"  json:"maxDimension"`
}

func postSpacing(c *gin.Context)  {
	var args postSpacingArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	printArgs(os.Stdout, "Spacing arguments:\n", "\n", args)

	s:=*defaults
	if args.PeakThreshold!=nil { s.PeakThreshold=*args.PeakThreshold }
	if args.MaxStdRatio!=nil   { s.MaxStdRatio  =*args.MaxStdRatio }
	if args.MinPeaks!=nil      { s.MinPeaks     =*args.MinPeaks }
	if args.MaxDimension!=nil  { s.MaxDimension =*args.MaxDimension }
	if err:=s.Validate(); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}

	f, err:=measureUpload(c, &s,
		pre.NewOpGrayDefault(), pre.NewOpResizeDefault(),
		fit.NewOpProfileDefault(), fit.NewOpPeakSpacingDefault())
	if(err!=nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}

	// an undetermined spacing is a regular outcome of a well-formed request,
	// reported as null rather than an error status
	m:=f.Measure
	var spacingPx interface{}
	if m.Ok && m.SpacingPx>0 { spacingPx=m.SpacingPx }
	peaks:=m.Peaks
	if peaks==nil { peaks=[]int32{} }

	res:=gin.H{
		"fringeSpacingPx": spacingPx,
		"peaks":           peaks,
		"resized":         f.Resized,
		"dimensions":      gin.H{"width": f.Width(), "height": f.Height()},
		"peakThreshold":   s.PeakThreshold,
		"maxStdRatio":     s.MaxStdRatio,
		"minPeaks":        s.MinPeaks,
	}
	if !m.Ok { res["reason"]=m.Reason.String() }
	c.JSON(http.StatusOK, res)
}

type postAutocorrArgs struct {
	CalP0        string   `form:"calP0"        json:"calP0"`
	CalP1        string   `form:"calP1"        json:"calP1"`
	CalLength    *float64 `form:"calLength"    json:"calLength"`
	WavelengthNm *float64 `form:"wavelengthNm" json:"wavelengthNm"`
	DistanceMm   *float64 `form:"distanceMm"   json:"distanceMm"`
}

func postAutocorr(c *gin.Context)  {
	var args postAutocorrArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	printArgs(os.Stdout, "Autocorr arguments:\n", "\n", args)

	// calibration is all or nothing; optics fields refine it further
	numCal:=0
	if args.CalP0!=""       { numCal++ }
	if args.CalP1!=""       { numCal++ }
	if args.CalLength!=nil  { numCal++ }
	if numCal!=0 && numCal!=3 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "calP0, calP1 and calLength must be given together" } )
		return
	}

	var x0, y0, x1, y1, length, wavelengthNm, distanceMm float64
	if numCal==3 {
		var err error
		if x0, y0, err=calib.ParsePoint(args.CalP0); err!=nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
			return
		}
		if x1, y1, err=calib.ParsePoint(args.CalP1); err!=nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
			return
		}
		length=*args.CalLength
		if args.WavelengthNm!=nil { wavelengthNm=*args.WavelengthNm }
		if args.DistanceMm!=nil   { distanceMm  =*args.DistanceMm }
	}

	// no resize step here, the calibration points refer to original pixels
	s:=*defaults
	f, err:=measureUpload(c, &s,
		pre.NewOpGrayDefault(), pre.NewOpEdgeDefault(),
		fit.NewOpAutocorrSpacingDefault(),
		fit.NewOpCalibrate(x0, y0, x1, y1, length, wavelengthNm, distanceMm))
	if(err!=nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}

	m:=f.Measure
	if !m.Ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": m.Reason.String() } )
		return
	}

	res:=gin.H{
		"spacingPx":  m.SpacingPx,
		"dimensions": gin.H{"width": f.Width(), "height": f.Height()},
	}
	if m.HasPhysical { res["spacingMm"]  =m.SpacingMm }
	if m.HasSlit     { res["slitWidthMm"]=m.SlitWidthMm }
	c.JSON(http.StatusOK, res)
}
