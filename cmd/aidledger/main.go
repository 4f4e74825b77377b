// Command aidledger is the client for an aidledger node: it manages
// keypairs, derives record addresses, computes batch roots and signs and
// submits registry transactions.
package main

func main() {
	Execute()
}
