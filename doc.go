// Package streamproxy resolves YouTube video ids into direct, playable
// stream URLs.
//
// A Resolver asks an extraction backend (see package extractor) for the
// video's metadata and candidate formats, picks one stream with a
// formats.Policy and normalizes the metadata:
//
//	ex, _ := extractor.New("ytdlp", extractor.Deps{})
//	r := streamproxy.New(ex).WithPolicy(formats.DefaultPolicy())
//	stream, err := r.Resolve(ctx, "dQw4w9WgXcQ")
//
// Failures are *errs.Error values whose Kind tells NotFound, AccessDenied,
// ExtractionFailure and Internal apart.
package streamproxy
