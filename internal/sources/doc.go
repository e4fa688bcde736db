// Package sources defines the adapter contract every forum source implements
// and the shared HTTP plumbing adapters use to talk to public JSON APIs.
//
// Adapters translate a vendor listing into canonical forum.Post values and a
// vendor thread into forum.Comment values. Every outbound attempt, successful
// or not, is reported to a Recorder so the request log captures the full
// traffic pattern of a cycle. Concrete adapters live in the reddit and
// discourse subpackages.
package sources
