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

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/debug"
	"time"
	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
	fr "github.com/mlnoga/fringe/internal"
	"github.com/mlnoga/fringe/internal/calib"
	"github.com/mlnoga/fringe/internal/measure"
	"github.com/mlnoga/fringe/internal/ops"
	"github.com/mlnoga/fringe/internal/ops/fit"
	"github.com/mlnoga/fringe/internal/ops/post"
	"github.com/mlnoga/fringe/internal/ops/pre"
	"github.com/mlnoga/fringe/internal/rest"
	"github.com/mlnoga/fringe/internal/stats"
)

const version = "0.1.0"

var totalMiBs=memory.TotalMemory()/1024/1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out = flag.String("out", "fringe_out", "write batch outputs into `directory`")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` logs batch runs to fringe.log in the output directory")

var peakThreshold = flag.Float64("peakThreshold", 0.35, "normalized peak acceptance threshold in [0,1]")
var maxStdRatio   = flag.Float64("maxStdRatio", 0.2, "maximum spacing stddev/mean ratio for acceptance")
var minPeaks      = flag.Int64("minPeaks", 3, "minimum number of peaks for a spacing estimate")
var maxDimension  = flag.Int64("maxDimension", 0, "downscale so the longest image side does not exceed this, 0=off")
var bandThreshold = flag.Float64("bandThreshold", 0.6, "band run threshold as a ratio of the profile maximum")
var refineBand    = flag.Bool("refineBand", false, "gaussian sub-pixel refinement of the band measurement")
var smoothSigma   = flag.Float64("smoothSigma", 3.5, "1D profile smoothing sigma, 0=off")
var blurSigma     = flag.Float64("blurSigma", 1.1, "2D blur sigma for edge detection, 0=off")
var edgeLow       = flag.Float64("edgeLow", 50.0/255.0, "lower hysteresis threshold on the [0,1] edge map")
var edgeHigh      = flag.Float64("edgeHigh", 150.0/255.0, "upper hysteresis threshold on the [0,1] edge map")
var luminance     = flag.Bool("luminance", false, "collapse color images via rec. 709 luminance instead of the channel mean")

var band    = flag.Bool("band", false, "measure the brightest band width instead of the fringe spacing")
var overlay = flag.String("overlay", "", "save annotated overlay image to `file`, %d expands to the frame id, %s to the file stem")

var strategy     = flag.String("strategy", "autocorr", "spacing strategy for batch runs, autocorr or peaks")
var calP0        = flag.String("calP0", "", "first calibration point as `x,y` in pixel coordinates of the analyzed frame")
var calP1        = flag.String("calP1", "", "second calibration point as `x,y` in pixel coordinates of the analyzed frame")
var calLength    = flag.Float64("calLength", 0, "known distance between the calibration points in mm")
var wavelengthNm = flag.Float64("wavelengthNm", 0, "light wavelength in nm for slit width derivation")
var distanceMm   = flag.Float64("distanceMm", 0, "pattern-to-screen distance in mm for slit width derivation")

var port        = flag.Int64("port", 8080, "port to serve the REST API on")
var chroot      = flag.String("chroot", "", "change filesystem root to `directory` before serving (requires root)")
var setuid      = flag.Int64("setuid", -1, "switch to this user id before serving, -1=no change")
var maxUploadMB = flag.Int64("maxUploadMB", 10, "reject uploads larger than this many MB")

var lsEst = flag.Int64("lsEst", 3, "location and scale estimators 0=mean/stddev, 1=median/MAD, 2=IKSS, 3=iterative sigma-clipped sampled median and sampled Qn (standard), 4=histogram peak")

func main() {
	logWriter:=io.Writer(os.Stdout)
	debug.SetGCPercent(10)
	start:=time.Now()
	flag.Usage=func(){
 	    fmt.Fprintf(logWriter, `Fringe Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (analyze|batch|serve|version|legal) (img0.jpg ... imgn.jpg)

Commands:
  analyze Measure fringe spacing, or band width with -band, on single images
  batch   Measure many images and export a results table with overlays
  serve   Start the REST API server
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
	    flag.PrintDefaults()
	}
	flag.Parse()

    args:=flag.Args()
    if len(args)<1 {
    	flag.Usage()
    	return
    }

	// parse flags into the settings object shared by all commands
	settings:=measure.NewSettings()
	settings.PeakThreshold=float32(*peakThreshold)
	settings.MaxStdRatio  =float32(*maxStdRatio)
	settings.MinPeaks     =int(*minPeaks)
	settings.MaxDimension =int(*maxDimension)
	settings.BandThreshold=float32(*bandThreshold)
	settings.RefineBand   =*refineBand
	settings.SmoothSigma  =float32(*smoothSigma)
	settings.BlurSigma    =float32(*blurSigma)
	settings.EdgeLow      =float32(*edgeLow)
	settings.EdgeHigh     =float32(*edgeHigh)
	settings.MaxUploadMB  =*maxUploadMB
	if err:=settings.Validate(); err!=nil {
		fmt.Fprintf(logWriter, "Error in settings: %s\n", err.Error())
		os.Exit(-1)
	}

	// batch outputs land in the output directory, create it early so the log can live there
	if args[0]=="batch" {
		if err:=os.MkdirAll(*out, 0755); err!=nil {
			fmt.Fprintf(logWriter, "Error creating output directory '%s': %s\n", *out, err.Error())
			os.Exit(-1)
		}
	}

	// Initialize logging to file in addition to stdout, if selected
	if *log=="%auto" {
		if args[0]=="batch" && *out!="" {
			*log=filepath.Join(*out, "fringe.log")
		} else {
			*log=""
		}
	}
	if *log!="" {
		err:=fr.LogAlsoToFile(*log)
		if err!=nil { fr.LogFatalf("Unable to open logfile '%s'\n", *log) }
	}
	logWriter=fr.LogWriter()

	// Enable CPU profiling if flagged
    if *cpuprofile != "" {
        f, err := os.Create(*cpuprofile)
        if err != nil {
            fr.LogFatal("Could not create CPU profile: ", err)
        }
        defer f.Close()
        if err := pprof.StartCPUProfile(f); err != nil {
            fr.LogFatal("Could not start CPU profile: ", err)
        }
        defer pprof.StopCPUProfile()
    }

    if args[0]=="analyze" || args[0]=="batch" {
	    fmt.Fprintf(logWriter, "Using location and scale estimator %d\n", *lsEst)
		stats.LSEstimator=stats.LSEstimatorMode(*lsEst)
	}

	// run actions
	var err error
    switch args[0] {
    case "analyze":
    	err=cmdAnalyze(args[1:], settings, logWriter)

    case "batch":
    	err=cmdBatch(args[1:], settings, logWriter)

    case "serve":
    	rest.Serve(int(*port), *chroot, int(*setuid), settings)

    case "legal":
    	fr.LogPrint(legal)

    case "version":
    	cmdVersion(logWriter)

    case "help", "?":
    	flag.Usage()

    default:
    	fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
    	flag.Usage()
    	return
    }

	now:=time.Now()
	elapsed:=now.Sub(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	// Store memory profile if flagged
    if *memprofile != "" {
        f, err := os.Create(*memprofile)
        if err != nil {
            fr.LogFatal("Could not create memory profile: ", err)
        }
        defer f.Close()
        runtime.GC() // get up-to-date statistics
        if err := pprof.Lookup("allocs").WriteTo(f,0); err != nil {
            fr.LogFatal("Could not write allocation profile: ", err)
        }
    }

    if err!=nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		os.Exit(-1)
	}
    fr.LogSync()
}

// Per-image measurement report printed by the analyze command
type analyzeResult struct {
	File     string            `json:"file"`
	Width    int32             `json:"width"`
	Height   int32             `json:"height"`
	Resized  bool              `json:"resized"`
	Measure  *measure.Result   `json:"measure"`
	Settings *measure.Settings `json:"settings"`
}

// Measure single images and print one JSON report per input
func cmdAnalyze(args []string, settings *measure.Settings, logWriter io.Writer) error {
	if len(args)<1 { return errors.New("need at least one input image") }

	steps:=[]ops.Operator{
		ops.NewOpLoadMany(args),
		pre.NewOpGray(*luminance),
		pre.NewOpResizeDefault(),
		fit.NewOpProfileDefault(),
	}
	if *band {
		steps=append(steps, fit.NewOpBandWidthDefault())
	} else {
		steps=append(steps, fit.NewOpPeakSpacingDefault())
	}
	if *overlay!="" {
		steps=append(steps, post.NewOpOverlayDefault(), ops.NewOpSave(*overlay))
	}

	c:=ops.NewContext(logWriter, settings, stats.LSEstimator)
	promises, err:=ops.NewOpSequence(steps...).MakePromises(nil, c)
	if err!=nil { return err }

	frames, err:=ops.MaterializeAll(promises, c.MaxThreads, false)
	for _, f:=range frames {
		report:=analyzeResult{
			File     : f.FileName,
			Width    : f.Width(),
			Height   : f.Height(),
			Resized  : f.Resized,
			Measure  : f.Measure,
			Settings : settings,
		}
		m, mErr:=json.MarshalIndent(report, "", "  ")
		if mErr!=nil { return mErr }
		fmt.Fprintf(logWriter, "%s\n", string(m))
	}
	return err
}

// Measure a set of images and export a CSV results table with overlay and
// edge diagnostic images into the output directory
func cmdBatch(args []string, settings *measure.Settings, logWriter io.Writer) error {
	if len(args)<1 { return errors.New("need at least one input image") }

	// calibration is all or nothing; optics fields refine it further
	numCal:=0
	if *calP0!=""    { numCal++ }
	if *calP1!=""    { numCal++ }
	if *calLength!=0 { numCal++ }
	if numCal!=0 && numCal!=3 {
		return errors.New("calP0, calP1 and calLength must be given together")
	}
	var x0, y0, x1, y1 float64
	if numCal==3 {
		var err error
		if x0, y0, err=calib.ParsePoint(*calP0); err!=nil { return err }
		if x1, y1, err=calib.ParsePoint(*calP1); err!=nil { return err }
	}

	method, err:=measure.ParseMethod(*strategy)
	if err!=nil { return err }

	steps:=[]ops.Operator{
		ops.NewOpLoadMany(args),
		pre.NewOpGray(*luminance),
		pre.NewOpResizeDefault(),
	}
	switch method {
	case measure.MethodAutocorr:
		steps=append(steps,
			pre.NewOpEdge(filepath.Join(*out, "%s_edges.jpg")),
			fit.NewOpAutocorrSpacingDefault())
	case measure.MethodPeaks:
		steps=append(steps,
			fit.NewOpProfileDefault(),
			fit.NewOpPeakSpacingDefault())
	default:
		return fmt.Errorf("batch does not support the %s strategy, expecting autocorr or peaks", method)
	}
	steps=append(steps,
		fit.NewOpCalibrate(x0, y0, x1, y1, *calLength, *wavelengthNm, *distanceMm),
		post.NewOpOverlayDefault(),
		ops.NewOpSave(filepath.Join(*out, "%s_overlay.jpg")),
		post.NewOpExportCSV(filepath.Join(*out, "results.csv")))

	c:=ops.NewContext(logWriter, settings, stats.LSEstimator)
	promises, err:=ops.NewOpSequence(steps...).MakePromises(nil, c)
	if err!=nil { return err }
	c.ResultsTotal=int32(len(promises))

	// bound parallelism by memory, assuming a worst case working set of 256 MiB per frame
	maxThreads:=c.MaxThreads
	if limit:=c.BatchMemoryMB/256; limit<maxThreads { maxThreads=limit }
	if maxThreads<1 { maxThreads=1 }
	fmt.Fprintf(logWriter, "Processing %d frames with %d workers given %d MiB of memory\n",
		len(promises), maxThreads, c.BatchMemoryMB)

	_, err=ops.MaterializeAll(promises, maxThreads, true)

	// close the results file if failed frames kept the exporter from doing so
	if c.ResultsWriter!=nil { c.ResultsWriter.Flush(); c.ResultsWriter=nil }
	if c.ResultsFile!=nil   { c.ResultsFile.Close();   c.ResultsFile=nil }

	fmt.Fprintf(logWriter, "Wrote results for %d of %d frames to %s\n",
		c.ResultsProcessed, c.ResultsTotal, filepath.Join(*out, "results.csv"))
	return err
}

// Show version and hardware diagnostics
func cmdVersion(logWriter io.Writer) {
	fmt.Fprintf(logWriter, "Version %s\n", version)
	fmt.Fprintf(logWriter, "CPU: %s with %d physical cores, %d threads each, AVX2 %v\n",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.ThreadsPerCore, cpuid.CPU.AVX2())
	fmt.Fprintf(logWriter, "Memory: %d MiB physical\n", totalMiBs)
	fmt.Fprintf(logWriter, "Runtime: %s with %d logical CPUs\n", runtime.Version(), runtime.NumCPU())
}
