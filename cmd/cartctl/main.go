// cartctl is a CLI for driving storefrontd sessions by hand.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	cartctl session [-q]
//	cartctl login -session ID -token TOKEN
//	cartctl logout -session ID
//	cartctl cart -session ID
//	cartctl add -session ID -product ID -size S [-qty N]
//	cartctl update -session ID -product ID -size S -qty N
//	cartctl remove -session ID -product ID -size S
//	cartctl clear -session ID
//	cartctl wish -session ID -product ID
//	cartctl wishlist -session ID
//	cartctl view -session ID -product ID
//	cartctl recent -session ID
//
// Examples:
//
//	SID=$(cartctl session -q)
//	cartctl add -session $SID -product P1 -size M -qty 2
//	cartctl login -session $SID -token "$TOKEN"
//	cartctl cart -session $SID
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	daemonURL string
	sessionID string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "session":
		runSession(args)
	case "login":
		runLogin(args)
	case "logout":
		runSimple("logout", "POST", "/logout", args)
	case "cart":
		runSimple("cart", "GET", "/cart", args)
	case "add":
		runItem("add", "POST", args)
	case "update":
		runItem("update", "PATCH", args)
	case "remove":
		runRemove(args)
	case "clear":
		runSimple("clear", "DELETE", "/cart", args)
	case "wish":
		runProduct("wish", "POST", "/wishlist/%s/toggle", args)
	case "wishlist":
		runSimple("wishlist", "GET", "/wishlist", args)
	case "view":
		runProduct("view", "POST", "/recent/%s", args)
	case "recent":
		runSimple("recent", "GET", "/recent", args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cartctl - storefrontd session tool

Usage:
  cartctl <command> [options]

Commands:
  session   Start a guest session and print its id
  login     Sign a session in with a storefront token
  logout    Sign a session out
  cart      Show the cart with count and total
  add       Add units of a product in a size
  update    Set the quantity of a product in a size (0 removes)
  remove    Remove a product in a size
  clear     Empty the cart
  wish      Toggle a product on the wishlist
  wishlist  Show the wishlist
  view      Record a product view
  recent    Show recently viewed products

Examples:
  SID=$(cartctl session -q)
  cartctl add -session "$SID" -product P1 -size M -qty 2
  cartctl login -session "$SID" -token "$TOKEN"

The session id may also be given as CARTCTL_SESSION.
Run 'cartctl <command> -h' for command-specific options.
`)
}

// newFlagSet registers the flags every command shares.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&daemonURL, "daemon", envOrDefault("CARTCTL_DAEMON", "http://localhost:8080"), "storefrontd base URL")
	fs.StringVar(&sessionID, "session", os.Getenv("CARTCTL_SESSION"), "Session id")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the essential value")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cartctl %s %s\n\nOptions:\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, needSession bool) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
	if needSession && sessionID == "" {
		fs.Usage()
		os.Exit(1)
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func runSession(args []string) {
	fs := newFlagSet("session", "[options]")
	parseFlags(fs, args, false)

	resp, err := doRequest("POST", "/sessions", nil)
	if err != nil {
		fatal("Failed to create session: %v", err)
	}

	data, _ := resp["data"].(map[string]interface{})
	id, _ := data["session"].(string)
	if quiet {
		fmt.Println(id)
		return
	}
	printSuccess("Session created")
	fmt.Printf("  ID: %s%s%s\n", colorCyan, id, colorReset)
}

func runLogin(args []string) {
	fs := newFlagSet("login", "-session ID -token TOKEN [options]")
	var token string
	fs.StringVar(&token, "token", os.Getenv("STOREFRONT_TOKEN"), "Storefront session token")
	parseFlags(fs, args, true)
	if token == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("POST", "/login", map[string]string{"token": token})
	if err != nil {
		fatal("Login failed: %v", err)
	}
	printSignals(resp)

	data, _ := resp["data"].(map[string]interface{})
	mode, _ := data["mode"].(string)
	if quiet {
		fmt.Println(mode)
		return
	}
	printSuccess("Signed in")
	if subject, ok := data["subject"].(string); ok && subject != "" {
		fmt.Printf("  Subject: %s%s%s\n", colorCyan, subject, colorReset)
	}
}

func runSimple(name, method, path string, args []string) {
	fs := newFlagSet(name, "-session ID [options]")
	parseFlags(fs, args, true)

	resp, err := doRequest(method, path, nil)
	if err != nil {
		fatal("%s failed: %v", name, err)
	}
	printSignals(resp)
	printSummary(resp)
}

func runItem(name, method string, args []string) {
	fs := newFlagSet(name, "-session ID -product ID -size S [-qty N] [options]")
	var productID, size string
	var qty int
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.StringVar(&size, "size", "", "Size label (required)")
	fs.IntVar(&qty, "qty", 1, "Quantity")
	parseFlags(fs, args, true)
	if productID == "" || size == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest(method, "/cart/items", map[string]interface{}{
		"productId": productID,
		"size":      size,
		"quantity":  qty,
	})
	if err != nil {
		fatal("%s failed: %v", name, err)
	}
	printSignals(resp)
	printSummary(resp)
}

func runRemove(args []string) {
	fs := newFlagSet("remove", "-session ID -product ID -size S [options]")
	var productID, size string
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.StringVar(&size, "size", "", "Size label (required)")
	parseFlags(fs, args, true)
	if productID == "" || size == "" {
		fs.Usage()
		os.Exit(1)
	}

	path := "/cart/items/" + url.PathEscape(productID) + "/" + url.PathEscape(size)
	resp, err := doRequest("DELETE", path, nil)
	if err != nil {
		fatal("remove failed: %v", err)
	}
	printSignals(resp)
	printSummary(resp)
}

func runProduct(name, method, pathFormat string, args []string) {
	fs := newFlagSet(name, "-session ID -product ID [options]")
	var productID string
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	parseFlags(fs, args, true)
	if productID == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest(method, fmt.Sprintf(pathFormat, url.PathEscape(productID)), nil)
	if err != nil {
		fatal("%s failed: %v", name, err)
	}
	printSignals(resp)
	printSummary(resp)
}

// =============================================================================
// HTTP CLIENT
// =============================================================================

func doRequest(method, path string, body interface{}) (map[string]interface{}, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	reqURL := strings.TrimSuffix(daemonURL, "/") + path
	req, err := http.NewRequest(method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if sessionID != "" {
		header, err := sessionHeader(sessionID)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Storefront-Session", header)
	}

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if !quiet {
		printResponse(resp.StatusCode, respBody, duration)
	}

	var result map[string]interface{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
	}

	if resp.StatusCode >= 400 {
		printSignals(result)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorMessage(result, respBody))
	}

	return result, nil
}

// sessionHeader renders id as an RFC 8941 dictionary: sid="<id>".
func sessionHeader(id string) (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add("sid", httpsfv.NewItem(id))
	value, err := httpsfv.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("encoding session header: %w", err)
	}
	return value, nil
}

func errorMessage(resp map[string]interface{}, raw []byte) string {
	if e, ok := resp["error"].(map[string]interface{}); ok {
		code, _ := e["code"].(string)
		msg, _ := e["message"].(string)
		return code + ": " + msg
	}
	return string(raw)
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}

	output := pretty.String()
	if !verbose {
		lines := strings.Split(output, "\n")
		if len(lines) > 30 {
			lines = append(lines[:25], fmt.Sprintf("%s  %s(%d more lines, use -v for full output)%s", prefix, colorGray, len(lines)-25, colorReset))
			output = strings.Join(lines, "\n")
		}
	}
	fmt.Println(output)
}

// printSignals shows notices and a login redirect attached to a response.
func printSignals(resp map[string]interface{}) {
	if resp == nil {
		return
	}
	if notices, ok := resp["notices"].([]interface{}); ok {
		for _, n := range notices {
			if m, ok := n.(map[string]interface{}); ok {
				msg, _ := m["message"].(string)
				printWarning("%s", msg)
			}
		}
	}
	if redirect, ok := resp["redirect"].(string); ok && redirect != "" {
		printWarning("session ended, sign in again (%s)", redirect)
	}
}

// printSummary prints the most useful field of a response payload.
func printSummary(resp map[string]interface{}) {
	data, _ := resp["data"].(map[string]interface{})
	if data == nil {
		return
	}

	if total, ok := data["total"].(string); ok {
		count, _ := data["count"].(float64)
		if quiet {
			fmt.Println(total)
			return
		}
		printSuccess("Cart updated")
		fmt.Printf("  Items: %s%d%s  Total: %s%s%s\n", colorCyan, int(count), colorReset, colorGreen, total, colorReset)
		return
	}

	if items, ok := data["items"].([]interface{}); ok {
		if quiet {
			fmt.Println(len(items))
			return
		}
		printSuccess("%d item(s)", len(items))
	}
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
