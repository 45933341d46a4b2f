// Package config builds an Authenticator from a YAML document.
//
// A document has three sections: session (store engine, cookie and signing
// secrets), observe (telemetry, see observe.Config) and strategies (a list of
// named strategy instances, each with a type and type-specific settings).
//
// Scalar values may reference the environment as ${VAR}; a missing variable
// is an error and $$ emits a literal dollar sign. Secret values (session
// secrets and strategy settings) may also be written as
// secretref:<provider>:<ref> and are resolved when the document is built.
// The env and file providers are always available.
//
//	session:
//	  store: memory
//	  secrets: ["secretref:file:/run/secrets/session_hash"]
//	strategies:
//	  - name: local
//	    type: form
//	    settings:
//	      users: {alice: "$$2a$$10$$..."}
//	  - name: api
//	    type: bearer
//	    settings: {jwks_url: "https://idp.example.com/jwks", audience: api}
//	  - name: svc
//	    type: apikey
//	    settings:
//	      keys: [{id: deploy, key: "secretref:env:DEPLOY_KEY", subject: ci-bot}]
package config
