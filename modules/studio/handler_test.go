package studio

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"portfolio-studio-server/modules/common/gemini"
	"portfolio-studio-server/modules/common/logger"
	"portfolio-studio-server/modules/common/model"
)

func newTestServer(t *testing.T, remote *scriptedRemote) (*httptest.Server, *Manager) {
	t.Helper()
	mgr := newTestManager(remote)
	router := mux.NewRouter()
	NewHandler(mgr, "*", logger.Nop()).Register(router)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		mgr.Shutdown()
	})
	return srv, mgr
}

func doJSON(t *testing.T, method, url string, body interface{}, out interface{}) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func editRemote() *scriptedRemote {
	return &scriptedRemote{edit: func(instruction string) ([]gemini.Part, error) {
		return []gemini.Part{gemini.InlineImagePart{Data: []byte("edited:" + instruction), MimeType: "image/png"}}, nil
	}}
}

func TestHandlerImageEditFlow(t *testing.T) {
	srv, _ := newTestServer(t, editRemote())
	base := srv.URL + "/api/studio"

	var opened View
	if code := doJSON(t, "POST", base+"/modals", map[string]string{"project_id": "proj-1"}, &opened); code != http.StatusCreated {
		t.Fatalf("open status = %d", code)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="shot.png"`)
	header.Set("Content-Type", "image/png")
	part, _ := form.CreatePart(header)
	part.Write([]byte("png bytes"))
	form.WriteField("prompt", "add a sunset")
	form.Close()

	resp, err := http.Post(base+"/modals/"+opened.ModalID+"/input", form.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	var ready View
	json.NewDecoder(resp.Body).Decode(&ready)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || ready.Phase != PhaseReady || ready.Input.Prompt != "add a sunset" {
		t.Fatalf("input = %d %+v", resp.StatusCode, ready)
	}

	var done View
	if code := doJSON(t, "POST", base+"/modals/"+opened.ModalID+"/submit", nil, &done); code != http.StatusOK {
		t.Fatalf("submit status = %d", code)
	}
	if done.Phase != PhaseSucceeded || done.Result == nil {
		t.Fatalf("submit view = %+v", done)
	}

	resp, err = http.Get(srv.URL + done.Result.ResultURL)
	if err != nil {
		t.Fatal(err)
	}
	var raw bytes.Buffer
	raw.ReadFrom(resp.Body)
	resp.Body.Close()
	if raw.String() != "edited:add a sunset" || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("result = %q (%s)", raw.String(), resp.Header.Get("Content-Type"))
	}

	var accepted struct {
		Entry EntryView `json:"entry"`
		Modal View      `json:"modal"`
	}
	if code := doJSON(t, "POST", base+"/modals/"+opened.ModalID+"/accept", nil, &accepted); code != http.StatusOK {
		t.Fatalf("accept status = %d", code)
	}
	if accepted.Entry.ProjectID != "proj-1" || accepted.Modal.Phase != PhaseIdle {
		t.Fatalf("accept = %+v", accepted)
	}

	var listed struct {
		ProjectIDs []string `json:"projectIds"`
	}
	doJSON(t, "GET", base+"/assets", nil, &listed)
	if len(listed.ProjectIDs) != 1 || listed.ProjectIDs[0] != "proj-1" {
		t.Fatalf("assets = %+v", listed)
	}

	resp, err = http.Get(srv.URL + accepted.Entry.AssetURL)
	if err != nil {
		t.Fatal(err)
	}
	raw.Reset()
	raw.ReadFrom(resp.Body)
	resp.Body.Close()
	if raw.String() != "edited:add a sunset" {
		t.Fatalf("raw asset = %q", raw.String())
	}

	if code := doJSON(t, "DELETE", base+"/assets/proj-1", nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete status = %d", code)
	}
	if code := doJSON(t, "GET", base+"/assets/proj-1", nil, nil); code != http.StatusNotFound {
		t.Fatalf("deleted asset status = %d", code)
	}
}

func TestHandlerStatusMapping(t *testing.T) {
	srv, mgr := newTestServer(t, editRemote())
	base := srv.URL + "/api/studio"

	if code := doJSON(t, "POST", base+"/modals", map[string]string{"project_id": "nope"}, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown project status = %d", code)
	}
	if code := doJSON(t, "GET", base+"/modals/missing", nil, nil); code != http.StatusNotFound {
		t.Fatalf("missing modal status = %d", code)
	}

	modal, _ := mgr.Open("proj-2", model.KindImageEdit)
	url := base + "/modals/" + modal.ID()
	if code := doJSON(t, "POST", url+"/submit", nil, nil); code != http.StatusConflict {
		t.Fatalf("submit without input status = %d", code)
	}
	if code := doJSON(t, "POST", url+"/input", map[string]string{"prompt": "x"}, nil); code != http.StatusBadRequest {
		t.Fatalf("input without image status = %d", code)
	}
	if code := doJSON(t, "GET", url+"/result", nil, nil); code != http.StatusNotFound {
		t.Fatalf("result before submit status = %d", code)
	}
	if code := doJSON(t, "POST", url+"/discard", nil, nil); code != http.StatusConflict {
		t.Fatalf("discard on idle status = %d", code)
	}
	if code := doJSON(t, "DELETE", url, nil, nil); code != http.StatusNoContent {
		t.Fatalf("close status = %d", code)
	}
	if code := doJSON(t, "GET", url, nil, nil); code != http.StatusNotFound {
		t.Fatalf("closed modal status = %d", code)
	}
}

func TestHandlerEncode(t *testing.T) {
	srv, _ := newTestServer(t, editRemote())

	var out map[string]string
	code := doJSON(t, "POST", srv.URL+"/api/studio/encode", map[string]string{"data_uri": "data:image/jpeg;base64,AAEC"}, &out)
	if code != http.StatusOK || out["mimeType"] != "image/jpeg" || out["data"] != "AAEC" {
		t.Fatalf("encode = %d %+v", code, out)
	}

	if code := doJSON(t, "POST", srv.URL+"/api/studio/encode", map[string]string{}, nil); code != http.StatusBadRequest {
		t.Fatalf("empty encode status = %d", code)
	}
}

func TestHandlerWebSocketStreamsViews(t *testing.T) {
	srv, mgr := newTestServer(t, editRemote())
	modal, _ := mgr.Open("proj-1", model.KindImageEdit)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/studio/modals/" + modal.ID() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg StreamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "view" || msg.View.Phase != PhaseIdle {
		t.Fatalf("first frame = %+v", msg)
	}

	modal.SetInput(Input{Asset: model.InlineAsset([]byte("png"), "image/png"), Prompt: "edit"})
	for msg.View.Phase != PhaseReady {
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatal(err)
		}
	}

	mgr.CloseModal(modal.ID())
	for !msg.View.Closed {
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}
