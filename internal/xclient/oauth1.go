package xclient

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// OAuth1 holds user-context credentials for OAuth 1.0a request signing.
type OAuth1 struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

func (o OAuth1) complete() bool {
	return o.ConsumerKey != "" && o.ConsumerSecret != "" && o.AccessToken != "" && o.AccessSecret != ""
}

// sign sets an OAuth 1.0a HMAC-SHA1 Authorization header on req. Query
// parameters are part of the signature; JSON bodies are not.
func (c *Client) sign(req *http.Request) {
	oauth := map[string]string{
		"oauth_consumer_key":     c.oauth.ConsumerKey,
		"oauth_nonce":            c.nonceFn(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(c.nowFn().Unix(), 10),
		"oauth_token":            c.oauth.AccessToken,
		"oauth_version":          "1.0",
	}
	var pairs []string
	for k, v := range oauth {
		pairs = append(pairs, rfc3986(k)+"="+rfc3986(v))
	}
	for k, vs := range req.URL.Query() {
		for _, v := range vs {
			pairs = append(pairs, rfc3986(k)+"="+rfc3986(v))
		}
	}
	sort.Strings(pairs)
	baseURL := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
	base := strings.ToUpper(req.Method) + "&" + rfc3986(baseURL) + "&" + rfc3986(strings.Join(pairs, "&"))
	signingKey := rfc3986(c.oauth.ConsumerSecret) + "&" + rfc3986(c.oauth.AccessSecret)
	mac := hmac.New(sha1.New, []byte(signingKey))
	_, _ = mac.Write([]byte(base))
	oauth["oauth_signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	keys := make([]string, 0, len(oauth))
	for k := range oauth {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=\"%s\"", rfc3986(k), rfc3986(oauth[k])))
	}
	req.Header.Set("Authorization", "OAuth "+strings.Join(parts, ", "))
}

// RFC 3986 percent-encoding for OAuth
func rfc3986(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(url.QueryEscape(s), "+", "%20"), "*", "%2A")
}
