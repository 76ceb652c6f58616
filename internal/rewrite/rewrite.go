// Package rewrite detects HLS manifests and rewrites every URI they
// reference to route back through the proxy.
//
// The rewriter is a small line tokenizer, not a full playlist parser: each
// line is classified as blank, tag, or URI, and only URI material is
// touched. Anything that fails to parse is passed through untouched; the
// player is better served by an unrewritten line than a dropped one.
package rewrite

import (
	"net/url"
	"strings"

	"github.com/grafana/regexp"
)

// manifestMarker is the mandatory first line of an HLS playlist.
const manifestMarker = "#EXTM3U"

// ContentType is the manifest content type sent with rewritten playlists.
const ContentType = "application/vnd.apple.mpegurl"

// hlsMIMETypes are the declared content types treated as HLS playlists.
var hlsMIMETypes = []string{
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
	"audio/mpegurl",
}

// uriAttrPattern matches URI="..." attributes in manifest tag lines
// (EXT-X-KEY, EXT-X-MAP, EXT-X-MEDIA, EXT-X-I-FRAME-STREAM-INF, ...).
var uriAttrPattern = regexp.MustCompile(`URI="([^"]*)"`)

// IsHLSContent reports whether a response should be treated as an HLS
// manifest based on its declared content type or the resolved target path.
// Declared types can lie; callers must still sniff the body with
// SniffManifest before rewriting.
func IsHLSContent(contentType string, target *url.URL) bool {
	ct := strings.ToLower(contentType)
	if mediaType, _, found := strings.Cut(ct, ";"); found {
		ct = strings.TrimSpace(mediaType)
	}
	for _, mime := range hlsMIMETypes {
		if ct == mime {
			return true
		}
	}
	if strings.Contains(ct, "vnd.apple.mpegurl") {
		return true
	}
	return target != nil && strings.HasSuffix(strings.ToLower(target.Path), ".m3u8")
}

// SniffManifest reports whether body starts with the manifest marker.
// A declared playlist type whose body fails this sniff is relayed verbatim
// instead of rewritten.
func SniffManifest(body string) bool {
	firstLine, _, _ := strings.Cut(body, "\n")
	return strings.HasPrefix(strings.TrimSpace(firstLine), manifestMarker)
}

// Prefix builds the proxy prefix rewritten URIs are appended to:
// <selfOrigin><path>?mode=<mode>&url=. Child requests for rewritten URIs
// inherit the active mode, so header spoofing carries through the whole
// playlist tree.
func Prefix(selfOrigin, path, mode string) string {
	return selfOrigin + path + "?mode=" + url.QueryEscape(mode) + "&url="
}

// Rewrite re-routes every URI in an HLS manifest through the proxy. Each
// URI (bare segment/sub-playlist lines and URI="..." tag attributes) is
// resolved against base and replaced with prefix plus the percent-encoded
// absolute URL. Blank lines and non-URI tags pass through unchanged, as
// does any URI that fails to parse.
func Rewrite(manifest string, base *url.URL, prefix string) string {
	lines := strings.Split(manifest, "\n")

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "#") {
			if uriAttrPattern.MatchString(line) {
				lines[i] = rewriteTagURIs(line, base, prefix)
			}
			continue
		}

		lines[i] = rewriteURI(trimmed, base, prefix)
	}

	return strings.Join(lines, "\n")
}

// rewriteTagURIs rewrites every URI="..." attribute value on a tag line,
// preserving the rest of the line.
func rewriteTagURIs(line string, base *url.URL, prefix string) string {
	return uriAttrPattern.ReplaceAllStringFunc(line, func(match string) string {
		raw := match[len(`URI="`) : len(match)-1]
		return `URI="` + rewriteURI(raw, base, prefix) + `"`
	})
}

// rewriteURI resolves raw against base and routes it through the proxy.
// On parse failure the original text is returned, never dropped.
func rewriteURI(raw string, base *url.URL, prefix string) string {
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	resolved := base.ResolveReference(ref)
	return prefix + url.QueryEscape(resolved.String())
}
