package upstream

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
)

const redacted = "[REDACTED]"

// dumpRequest writes the outbound request to stderr with the credential
// removed. The dump is taken from a header clone so the live request keeps
// its Authorization header.
func (c *Client) dumpRequest(req *http.Request, body []byte) {
	if c == nil || !c.Debug || req == nil {
		return
	}
	clone := req.Clone(req.Context())
	clone.Body = nil
	clone.Header = redactHeaders(req.Header)

	headerDump, err := httputil.DumpRequestOut(clone, false)
	if err != nil {
		slog.Error("upstream.request.dump.failed", "error", err)
		return
	}
	c.writeDebugDumpBlock("UPSTREAM REQUEST", append(headerDump, body...))
}

func (c *Client) dumpResponse(resp *http.Response, body []byte) {
	if c == nil || !c.Debug || resp == nil {
		return
	}
	headerDump, err := httputil.DumpResponse(resp, false)
	if err != nil {
		slog.Error("upstream.response.dump.failed", "error", err)
		return
	}
	c.writeDebugDumpBlock(fmt.Sprintf("UPSTREAM RESPONSE status=%d", resp.StatusCode), append(headerDump, body...))
}

func (c *Client) writeDebugDumpBlock(title string, data []byte) {
	c.dumpMu.Lock()
	defer c.dumpMu.Unlock()

	header := "===== " + strings.TrimSpace(title) + " BEGIN =====\n"
	footer := "===== " + strings.TrimSpace(title) + " END =====\n"

	os.Stderr.WriteString(header)
	if len(data) > 0 {
		os.Stderr.Write(data)
		if data[len(data)-1] != '\n' {
			os.Stderr.WriteString("\n")
		}
	}
	os.Stderr.WriteString(footer)
}

func redactHeaders(h http.Header) http.Header {
	out := h.Clone()
	for _, key := range []string{"Authorization", "Proxy-Authorization"} {
		if out.Get(key) != "" {
			out.Set(key, redacted)
		}
	}
	return out
}
