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
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// cosine fringes with the given period in pixels along x
func fringeImage(width, height, period int) *image.Gray {
	img:=image.NewGray(image.Rect(0, 0, width, height))
	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			v:=0.5+0.5*math.Cos(2*math.Pi*float64(x)/float64(period))
			img.SetGray(x, y, color.Gray{Y: uint8(v*255)})
		}
	}
	return img
}

// a single bright band covering columns [start,end)
func bandImage(width, height, start, end int) *image.Gray {
	img:=image.NewGray(image.Rect(0, 0, width, height))
	for y:=0; y<height; y++ {
		for x:=start; x<end; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return img
}

// asymmetric stripes, bright for the first `bright` columns of every period
func stripeImage(width, height, period, bright int) *image.Gray {
	img:=image.NewGray(image.Rect(0, 0, width, height))
	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			if x%period<bright {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func multipartBody(t *testing.T, img image.Image, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf:=&bytes.Buffer{}
	w:=multipart.NewWriter(buf)
	fw, err:=w.CreateFormFile("file", "upload.png")
	if err!=nil { t.Fatal(err) }
	if img!=nil {
		if err:=png.Encode(fw, img); err!=nil { t.Fatal(err) }
	} else {
		fw.Write([]byte("this is not an image"))
	}
	for k, v:=range fields {
		if err:=w.WriteField(k, v); err!=nil { t.Fatal(err) }
	}
	if err:=w.Close(); err!=nil { t.Fatal(err) }
	return buf, w.FormDataContentType()
}

func postImage(t *testing.T, r *gin.Engine, path string, img image.Image, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType:=multipartBody(t, img, fields)
	req:=httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", contentType)
	w:=httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var res map[string]interface{}
	if err:=json.Unmarshal(w.Body.Bytes(), &res); err!=nil {
		t.Fatalf("invalid JSON response %s: %s", w.Body.String(), err)
	}
	return res
}

func TestGetPing(t *testing.T) {
	r:=newRouter()
	w:=httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))
	if w.Code!=200 || !strings.Contains(w.Body.String(), "pong") {
		t.Errorf("status=%d body=%s; want 200 pong", w.Code, w.Body.String())
	}
}

func TestGetHealthz(t *testing.T) {
	r:=newRouter()
	w:=httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code!=200 || !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("status=%d body=%s; want 200 ok", w.Code, w.Body.String())
	}
}

func TestGetIndex(t *testing.T) {
	r:=newRouter()
	w:=httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code!=200 || !strings.Contains(w.Body.String(), "<form") {
		t.Errorf("status=%d; want 200 with the upload form", w.Code)
	}
}

func TestPostSpacing(t *testing.T) {
	r:=newRouter()
	w:=postImage(t, r, "/api/v1/spacing", fringeImage(128, 32, 10), nil)
	if w.Code!=200 {
		t.Fatalf("status=%d body=%s; want 200", w.Code, w.Body.String())
	}
	res:=decodeJSON(t, w)

	spacing, ok:=res["fringeSpacingPx"].(float64)
	if !ok {
		t.Fatalf("fringeSpacingPx=%v; want a number", res["fringeSpacingPx"])
	}
	if spacing<9 || spacing>11 {
		t.Errorf("spacing=%g px; want about 10", spacing)
	}
	if peaks, ok:=res["peaks"].([]interface{}); !ok || len(peaks)<3 {
		t.Errorf("peaks=%v; want at least 3", res["peaks"])
	}
	dims:=res["dimensions"].(map[string]interface{})
	if dims["width"].(float64)!=128 || dims["height"].(float64)!=32 {
		t.Errorf("dimensions=%v; want 128x32", dims)
	}
	if res["resized"].(bool) {
		t.Error("resized=true without a maxDimension limit")
	}
	if res["peakThreshold"].(float64)!=0.35 || res["minPeaks"].(float64)!=3 {
		t.Errorf("echoed parameters %v/%v do not match the defaults", res["peakThreshold"], res["minPeaks"])
	}
}

func TestPostSpacingUndetermined(t *testing.T) {
	flat:=image.NewGray(image.Rect(0, 0, 64, 16))
	for i:=range flat.Pix { flat.Pix[i]=128 }

	r:=newRouter()
	w:=postImage(t, r, "/api/v1/spacing", flat, nil)
	if w.Code!=200 {
		t.Fatalf("status=%d; want 200, null spacing is not an error", w.Code)
	}
	res:=decodeJSON(t, w)
	if res["fringeSpacingPx"]!=nil {
		t.Errorf("fringeSpacingPx=%v; want null", res["fringeSpacingPx"])
	}
	if peaks, ok:=res["peaks"].([]interface{}); !ok || len(peaks)!=0 {
		t.Errorf("peaks=%v; want an empty list, not null", res["peaks"])
	}
	if res["reason"]!="no signal" {
		t.Errorf("reason=%v; want no signal", res["reason"])
	}
}

func TestPostSpacingParams(t *testing.T) {
	r:=newRouter()
	w:=postImage(t, r, "/api/v1/spacing", fringeImage(128, 32, 10),
		map[string]string{"minPeaks": "20", "maxDimension": "64"})
	if w.Code!=200 {
		t.Fatalf("status=%d body=%s; want 200", w.Code, w.Body.String())
	}
	res:=decodeJSON(t, w)
	if res["fringeSpacingPx"]!=nil {
		t.Errorf("spacing=%v; want null, 128 px cannot hold 20 fringes", res["fringeSpacingPx"])
	}
	if res["minPeaks"].(float64)!=20 {
		t.Errorf("minPeaks echo=%v; want 20", res["minPeaks"])
	}
	if !res["resized"].(bool) {
		t.Error("resized=false with maxDimension 64 on a 128 px image")
	}
}

func TestPostSpacingRejectsBadSettings(t *testing.T) {
	r:=newRouter()
	w:=postImage(t, r, "/api/v1/spacing", fringeImage(64, 16, 10),
		map[string]string{"maxStdRatio": "-1"})
	if w.Code!=http.StatusBadRequest {
		t.Errorf("status=%d; want 400 for a negative maxStdRatio", w.Code)
	}
}

func TestPostSpacingBadImage(t *testing.T) {
	r:=newRouter()
	w:=postImage(t, r, "/api/v1/spacing", nil, nil)
	if w.Code!=http.StatusBadRequest {
		t.Errorf("status=%d; want 400 for an undecodable upload", w.Code)
	}
}

func TestPostBand(t *testing.T) {
	r:=newRouter()
	w:=postImage(t, r, "/api/v1/band", bandImage(128, 32, 50, 70),
		map[string]string{"thresholdRatio": "0.5", "pixelSize": "0.1"})
	if w.Code!=200 {
		t.Fatalf("status=%d body=%s; want 200", w.Code, w.Body.String())
	}
	res:=decodeJSON(t, w)
	width:=res["widthPx"].(float64)
	if width<18 || width>22 {
		t.Errorf("widthPx=%g; want about 20", width)
	}
	widthMm, ok:=res["widthMm"].(float64)
	if !ok || widthMm<1.8 || widthMm>2.2 {
		t.Errorf("widthMm=%v; want about 2.0 at 0.1 mm/px", res["widthMm"])
	}
	if res["pixelSize"].(float64)!=0.1 {
		t.Errorf("pixelSize echo=%v; want 0.1", res["pixelSize"])
	}
}

func TestPostBandUndetermined(t *testing.T) {
	dark:=image.NewGray(image.Rect(0, 0, 64, 16))

	r:=newRouter()
	w:=postImage(t, r, "/api/v1/band", dark, nil)
	if w.Code!=http.StatusUnprocessableEntity {
		t.Fatalf("status=%d body=%s; want 422", w.Code, w.Body.String())
	}
	res:=decodeJSON(t, w)
	if res["error"]!="no signal" {
		t.Errorf("error=%v; want no signal", res["error"])
	}
}

func TestPostBandRejectsPixelSize(t *testing.T) {
	r:=newRouter()
	w:=postImage(t, r, "/api/v1/band", bandImage(64, 16, 20, 40),
		map[string]string{"pixelSize": "-0.5"})
	if w.Code!=http.StatusBadRequest {
		t.Errorf("status=%d; want 400 for a negative pixelSize", w.Code)
	}
}

func TestPostAutocorr(t *testing.T) {
	r:=newRouter()
	w:=postImage(t, r, "/api/v1/autocorr", stripeImage(400, 24, 16, 4),
		map[string]string{
			"calP0": "0,0", "calP1": "100,0", "calLength": "10",
			"wavelengthNm": "650", "distanceMm": "1000",
		})
	if w.Code!=200 {
		t.Fatalf("status=%d body=%s; want 200", w.Code, w.Body.String())
	}
	res:=decodeJSON(t, w)

	spacing:=res["spacingPx"].(float64)
	if spacing<15 || spacing>17 {
		t.Errorf("spacingPx=%g; want about 16", spacing)
	}
	spacingMm:=res["spacingMm"].(float64) // 0.1 mm/px scale
	if spacingMm<1.5 || spacingMm>1.7 {
		t.Errorf("spacingMm=%g; want about 1.6", spacingMm)
	}
	slit:=res["slitWidthMm"].(float64) // 650e-6*1000/spacingMm
	want:=650e-6*1000/spacingMm
	if math.Abs(slit-want)>1e-9 {
		t.Errorf("slitWidthMm=%g; want %g", slit, want)
	}
}

func TestPostAutocorrWithoutCalibration(t *testing.T) {
	r:=newRouter()
	w:=postImage(t, r, "/api/v1/autocorr", stripeImage(400, 24, 16, 4), nil)
	if w.Code!=200 {
		t.Fatalf("status=%d body=%s; want 200", w.Code, w.Body.String())
	}
	res:=decodeJSON(t, w)
	if spacing:=res["spacingPx"].(float64); spacing<15 || spacing>17 {
		t.Errorf("spacingPx=%g; want about 16", spacing)
	}
	if _, present:=res["spacingMm"]; present {
		t.Error("spacingMm present without calibration")
	}
	if _, present:=res["slitWidthMm"]; present {
		t.Error("slitWidthMm present without calibration")
	}
}

func TestPostAutocorrPartialCalibration(t *testing.T) {
	r:=newRouter()
	w:=postImage(t, r, "/api/v1/autocorr", stripeImage(400, 24, 16, 4),
		map[string]string{"calP0": "0,0"})
	if w.Code!=http.StatusBadRequest {
		t.Errorf("status=%d; want 400 for a partial calibration", w.Code)
	}
}

func TestPostAutocorrInvalidCalibration(t *testing.T) {
	r:=newRouter()
	w:=postImage(t, r, "/api/v1/autocorr", stripeImage(400, 24, 16, 4),
		map[string]string{"calP0": "5,5", "calP1": "5,5", "calLength": "10"})
	if w.Code!=http.StatusBadRequest {
		t.Fatalf("status=%d body=%s; want 400 for coinciding points", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "invalid calibration input") {
		t.Errorf("body=%s; want the invalid calibration reason", w.Body.String())
	}
}

func TestPostAutocorrUndetermined(t *testing.T) {
	noise:=image.NewGray(image.Rect(0, 0, 30, 8)) // too short for a lag search

	r:=newRouter()
	w:=postImage(t, r, "/api/v1/autocorr", noise, nil)
	if w.Code!=http.StatusUnprocessableEntity {
		t.Errorf("status=%d body=%s; want 422", w.Code, w.Body.String())
	}
}

func TestUploadSizeLimit(t *testing.T) {
	r:=newRouter()
	body:=bytes.NewReader(make([]byte, (defaults.MaxUploadMB+1)<<20))
	req:=httptest.NewRequest("POST", "/api/v1/spacing", body)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	w:=httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code!=http.StatusRequestEntityTooLarge {
		t.Errorf("status=%d; want 413", w.Code)
	}
}
