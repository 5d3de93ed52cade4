package pathpolicy

import "net/url"

// LoginURL returns the login path carrying from as the return destination.
func LoginURL(loginPath, from string) string {
	if from == "" {
		return loginPath
	}
	return loginPath + "?" + url.Values{"from": {from}}.Encode()
}

// DeniedURL returns the denial page path carrying the missing capability and
// the originally requested path.
func DeniedURL(deniedPath, capability, from string) string {
	q := url.Values{"denied": {capability}}
	if from != "" {
		q.Set("from", from)
	}
	return deniedPath + "?" + q.Encode()
}
