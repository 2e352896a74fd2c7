// Command roast is the operator CLI for the karaoke roast machine.
//
// `roast serve` runs the daemon: the HTTP API, the workflow workers and the
// session store. The remaining commands open the same SQLite databases
// directly, so runs and sessions can be inspected and managed whether or not
// a daemon is running. Runs submitted from the CLI are picked up by the next
// daemon worker that polls the queue.
package main
