// Package client is the public error-reporting SDK.
//
// A Client turns Go errors into events and delivers them to a
// Sentry-compatible store endpoint:
//
//	c, err := client.New(client.Options{DSN: os.Getenv("CRASHPOST_DSN")})
//	if err != nil { ... }
//	defer c.Close()
//
//	if err := doWork(); err != nil {
//		c.Capture(err, event.WithTags(map[string]string{"job": "nightly"}))
//	}
//	c.Flush(ctx)
//
// Capture never blocks on the network. Events are sent one at a time, in
// capture order; a 429 answer pauses delivery for the configured cooldown and
// the throttled event is retried after the events captured before the pause.
// Any other failure drops the event.
package client
