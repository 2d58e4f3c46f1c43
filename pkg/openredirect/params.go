package openredirect

// CommonParams returns parameter names commonly used to carry a redirect
// destination.
func CommonParams() []string {
	return []string{
		"url", "redirect", "redirect_url", "redirect_uri",
		"return", "return_url", "return_to", "returnUrl",
		"next", "next_url", "nextUrl",
		"goto", "dest", "destination", "target", "to",
		"continue", "forward", "callback", "callback_url",
		"redir", "success_url", "cancel_url", "rurl", "r", "u",
	}
}
