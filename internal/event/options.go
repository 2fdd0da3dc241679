package event

// Option modifies an Event after it has been built.
type Option func(*Event)

// WithLevel sets the severity.
func WithLevel(l Level) Option {
	return func(e *Event) { e.Level = l }
}

// WithTags merges tags into the event.
func WithTags(tags map[string]string) Option {
	return func(e *Event) {
		if len(tags) == 0 {
			return
		}
		if e.Tags == nil {
			e.Tags = make(map[string]string, len(tags))
		}
		for k, v := range tags {
			e.Tags[k] = v
		}
	}
}

// WithExtra merges arbitrary key/value data into the event.
func WithExtra(extra map[string]any) Option {
	return func(e *Event) {
		if len(extra) == 0 {
			return
		}
		if e.Extra == nil {
			e.Extra = make(map[string]any, len(extra))
		}
		for k, v := range extra {
			e.Extra[k] = v
		}
	}
}

// WithRequestURL records the URL being handled.
func WithRequestURL(url string) Option {
	return func(e *Event) { e.Request = &Request{URL: url} }
}

// WithExceptionType overrides the exception type, for errors reported on
// behalf of another process.
func WithExceptionType(name string) Option {
	return func(e *Event) {
		if name != "" && len(e.Exception.Values) > 0 {
			e.Exception.Values[0].Type = name
		}
	}
}

// WithoutStacktrace drops the captured stack trace.
func WithoutStacktrace() Option {
	return func(e *Event) {
		for i := range e.Exception.Values {
			e.Exception.Values[i].Stacktrace = nil
		}
	}
}

// WithEnvironment overrides the builder's environment.
func WithEnvironment(env string) Option {
	return func(e *Event) { e.Environment = env }
}

// WithRelease overrides the builder's release.
func WithRelease(release string) Option {
	return func(e *Event) { e.Release = release }
}
