package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bken/mixcore/internal/capture"
	"bken/mixcore/internal/control"
	"bken/mixcore/internal/deviceio"
	"bken/mixcore/internal/processor"
	"bken/mixcore/internal/render"
)

type fakeBackend struct {
	devices []deviceio.Device
}

func (b *fakeBackend) Devices() ([]deviceio.Device, error) { return b.devices, nil }
func (b *fakeBackend) OpenCapture(deviceID string, sampleRate float64, blockSize int) (deviceio.CaptureStream, error) {
	return nil, deviceio.ErrFormatNegotiationFailed
}
func (b *fakeBackend) OpenRender(deviceID string, sampleRate float64, blockSize int) (deviceio.RenderStream, error) {
	return nil, deviceio.ErrFormatNegotiationFailed
}

func newTestServer() *Server {
	proc := processor.New()
	surface := control.New(proc)
	backend := &fakeBackend{devices: []deviceio.Device{
		{ID: "0", Name: "Mic", InputChannels: 2},
		{ID: "1", Name: "Speakers", OutputChannels: 2},
	}}
	outputs := render.NewRegistry(backend, proc, capture.NewRegistry(), 48000, 256)
	return New(surface, backend, outputs, nil)
}

func Test_GetOutputDevicesFiltersToOutputCapableDevices(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/output_devices", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var devices []deviceio.Device
	if err := json.Unmarshal(rec.Body.Bytes(), &devices); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(devices) != 1 || devices[0].Name != "Speakers" {
		t.Errorf("devices = %+v", devices)
	}
}

func Test_AddSourceSinkAndEdgeEndToEnd(t *testing.T) {
	s := newTestServer()

	srcBody := `{"kind":"prism","channel":0,"label":"mic","capacity":4}`
	srcReq := httptest.NewRequest(http.MethodPost, "/api/nodes/source", strings.NewReader(srcBody))
	srcReq.Header.Set("Content-Type", "application/json")
	srcRec := httptest.NewRecorder()
	s.Echo().ServeHTTP(srcRec, srcReq)
	if srcRec.Code != http.StatusCreated {
		t.Fatalf("add source status = %d, body = %s", srcRec.Code, srcRec.Body.String())
	}
	var srcResp struct{ Handle uint32 }
	json.Unmarshal(srcRec.Body.Bytes(), &srcResp)

	sinkBody := `{"device_id":"1","channel_count":1,"label":"sink","capacity":4}`
	sinkReq := httptest.NewRequest(http.MethodPost, "/api/nodes/sink", strings.NewReader(sinkBody))
	sinkReq.Header.Set("Content-Type", "application/json")
	sinkRec := httptest.NewRecorder()
	s.Echo().ServeHTTP(sinkRec, sinkReq)
	if sinkRec.Code != http.StatusCreated {
		t.Fatalf("add sink status = %d, body = %s", sinkRec.Code, sinkRec.Body.String())
	}
	var sinkResp struct{ Handle uint32 }
	json.Unmarshal(sinkRec.Body.Bytes(), &sinkResp)

	edgeBody, _ := json.Marshal(map[string]any{
		"source_handle": srcResp.Handle,
		"source_port":   0,
		"target_handle": sinkResp.Handle,
		"target_port":   0,
	})
	edgeReq := httptest.NewRequest(http.MethodPost, "/api/edges", strings.NewReader(string(edgeBody)))
	edgeReq.Header.Set("Content-Type", "application/json")
	edgeRec := httptest.NewRecorder()
	s.Echo().ServeHTTP(edgeRec, edgeReq)
	if edgeRec.Code != http.StatusCreated {
		t.Fatalf("add edge status = %d, body = %s", edgeRec.Code, edgeRec.Body.String())
	}

	metersReq := httptest.NewRequest(http.MethodGet, "/api/meters", nil)
	metersRec := httptest.NewRecorder()
	s.Echo().ServeHTTP(metersRec, metersReq)
	if metersRec.Code != http.StatusOK {
		t.Fatalf("meters status = %d", metersRec.Code)
	}
}

func Test_RemoveNonexistentEdgeReturns404(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodDelete, "/api/edges/999", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func Test_StartOutputOnUnsupportedBackendReturns409(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/outputs/1/start", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}
