// Package client is the Go SDK for a genledger service.
//
// Every generation call returns the generated text together with a
// verification hash. The hash can later be checked against the service's
// ledger to confirm the response was issued by the service and has not been
// altered since:
//
//	c, err := client.New("http://localhost:5000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s, err := c.Summarize(ctx, article)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	v, err := c.Verify(ctx, s.VerificationHash)
//	if errors.Is(err, client.ErrNotFound) {
//	    // never recorded, or the hash was altered
//	}
//
// # Verifying content rather than a hash
//
// VerifyPayload recomputes the hash locally from the response body, so a
// tampered summary is detected even when the attached hash is intact:
//
//	v, err := c.VerifyPayload(ctx, map[string]any{"summary": s.Summary})
package client
