package session

// Source names where the selected capabilities came from
type Source string

const (
	SourceAlwaysMatch Source = "alwaysMatch"
	SourceFirstMatch  Source = "firstMatch"
	SourceDesired     Source = "desiredCapabilities"
	SourceDefault     Source = "default"
)

// SelectCapabilities picks exactly one capability set by precedence
func SelectCapabilities(req CreateRequest) (Capabilities, Source) {
	if w3c := req.Capabilities; w3c != nil {
		if w3c.AlwaysMatch != nil {
			return *w3c.AlwaysMatch, SourceAlwaysMatch
		}
		if len(w3c.FirstMatch) > 0 {
			return w3c.FirstMatch[0], SourceFirstMatch
		}
	}
	if req.DesiredCapabilities != nil {
		return *req.DesiredCapabilities, SourceDesired
	}
	return Capabilities{BrowserName: "chrome"}, SourceDefault
}

// ResolveLaunchOptions overlays the request's chromeOptions on defaults and
// applies capability args. Args replace the flags and disable default flags;
// headless then follows the args unless the request set it explicitly.
func ResolveLaunchOptions(defaults LaunchOptions, req CreateRequest, caps Capabilities) LaunchOptions {
	opts := defaults
	opts.ChromeFlags = append([]string(nil), defaults.ChromeFlags...)

	if o := req.ChromeOptions; o != nil {
		if o.ChromePath != "" {
			opts.ChromePath = o.ChromePath
		}
		if o.ChromeFlags != nil {
			opts.ChromeFlags = append([]string(nil), o.ChromeFlags...)
		}
		if o.Headless != nil {
			opts.Headless = o.Headless
		}
		if o.IgnoreDefaultFlags {
			opts.IgnoreDefaultFlags = true
		}
		if o.UserDataDir != "" {
			opts.UserDataDir = o.UserDataDir
		}
		if o.Port != 0 {
			opts.Port = o.Port
		}
		if o.StartingURL != "" {
			opts.StartingURL = o.StartingURL
		}
	}

	if chrome := caps.Chrome(); chrome != nil && len(chrome.Args) > 0 {
		opts.ChromeFlags = append([]string(nil), chrome.Args...)
		opts.IgnoreDefaultFlags = true
		if req.ChromeOptions == nil || req.ChromeOptions.Headless == nil {
			opts.Headless = nil
		}
	}

	opts.Extensions = nil
	return opts
}
