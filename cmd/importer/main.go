// Command importer analyzes and imports spreadsheet files from the command
// line and rolls back imports made through a running server.
package main

func main() {
	Execute()
}
