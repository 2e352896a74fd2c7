// Package preflight provides readiness checks for the external services,
// binaries and filesystem paths the roast machine depends on.
//
// These checks run in two contexts:
//   - The daemon health endpoint calls RunLocal, which never touches the network.
//   - The CLI "roast status" command calls RunAll, which adds a live LLM ping.
package preflight
