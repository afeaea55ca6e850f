/*
Package cipher turns protected YouTube stream URLs into playable ones.

Some formats in a player response carry a signatureCipher instead of a
URL. The signature has to be run through a function defined in the
player script, and most URLs additionally carry an n parameter that is
throttled unless it is transformed by a second function.

The Decipherer downloads the player script once per TTL (cached through
gache on the active filesystem). The scramble function and its helper
object are located with regular expressions and replayed in Go; the n
function is cut out of the script and run alone in otto. Scripts that
defeat parsing are loaded whole into otto, where global decipher and
ncode functions are called instead.

A Session shares one script and its runtimes across the formats of a
video:

	d := cipher.New(httpClient, cipher.WithCacheDir(dir))
	s, err := d.Session(ctx, playerJSURL)
	playable, err := s.ResolveURL("", format.SignatureCipher)

Every *Error carries a code and matches errs.ErrCipherFailed, so callers
classify it as an extraction failure:

	switch {
	case cipher.IsNotFound(err):
	case cipher.IsJSError(err):
	}
*/
package cipher
