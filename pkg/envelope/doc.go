// Package envelope signs and verifies the construction arguments a
// component round-trips through the client.
//
// When a component is rendered, its serialized state is packed into an
// envelope and placed on the element. The client hands the envelope back
// verbatim on join. Decode refuses to look at the payload until the
// signature has been verified under the server's current key, so a client
// cannot forge construction state for fields the server trusts.
//
// Envelope format:
//
//	base64url(json(payload)) "." base64url(mac(salt, algorithm, json(payload)))
//
// JSON encoding of a map sorts its keys, which makes the serialization
// canonical for a given payload.
package envelope
