package version

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestGetEmbedsBuildInfo(t *testing.T) {
	old := Version
	Version = "1.2.3"
	t.Cleanup(func() { Version = old })

	resp := Get(2, &GetVersionRequest{})
	if resp.Version != "1.2.3" || resp.Nodes != 2 || resp.CheckedAtUnix == 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"version":"1.2.3"`) || !strings.Contains(string(out), `"nodes":2`) {
		t.Fatalf("unexpected json: %s", out)
	}
}
