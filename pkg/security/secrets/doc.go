// Package secrets resolves ${secret:name} references in credential
// configuration fields.
//
// Secrets are looked up in environment variables (secrets.env_prefix plus
// the upper-cased name) and then, when secrets.dir is set, in a file named
// after the secret:
//
//	upstream:
//	  api_key: ${secret:upstream-api-key}
//	secrets:
//	  env_prefix: GOVERNOR_SECRET_
//	  dir: /run/secrets
//
// Resolved values are cached for secrets.cache_ttl and are only ever held
// in the resolved configuration snapshot, never written back to disk.
package secrets
