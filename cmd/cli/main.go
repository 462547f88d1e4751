package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "signup":
		signup(args)
	case "signin":
		signin(args)
	case "who":
		whoAmI()
	case "passwd":
		changePassword(args)
	case "users":
		handleUsers(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`identityhub CLI

Usage:
  identityhub signup -username <name> -password <pass>
  identityhub signin -username <name> -password <pass>
  identityhub who
  identityhub passwd -old <pass> -new <pass>
  identityhub users list [-limit N] [-skip N] [-username name]
  identityhub users get -id <uuid>
  identityhub users delete -id <uuid>

The API base URL is read from IDENTITYHUB_API (default http://localhost:8080/api/v1).
Tokens are stored in ~/.identityhub/token.`)
}

// envelope mirrors the API response shape.
type envelope struct {
	Meta   map[string]any `json:"meta"`
	Result any            `json:"result"`
	Errors []string       `json:"errors"`
}

func signup(args []string) {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	username := fs.String("username", "", "username (3-30 alphanumeric)")
	password := fs.String("password", "", "password (min 8 characters)")
	fs.Parse(args)

	if *username == "" || *password == "" {
		fmt.Println("Error: username and password are required")
		fs.PrintDefaults()
		return
	}

	status, body := post("/system/signup", map[string]string{
		"username": *username,
		"password": *password,
	}, "")
	if status == http.StatusCreated {
		fmt.Printf("✓ User created: %s\n", *username)
	} else {
		fmt.Printf("✗ Signup failed: %s\n", describe(body))
	}
}

func signin(args []string) {
	fs := flag.NewFlagSet("signin", flag.ExitOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")
	fs.Parse(args)

	if *username == "" || *password == "" {
		fmt.Println("Error: username and password are required")
		fs.PrintDefaults()
		return
	}

	status, body := post("/system/signin", map[string]string{
		"username": *username,
		"password": *password,
	}, "")
	if status != http.StatusOK {
		fmt.Printf("✗ Signin failed: %s\n", describe(body))
		return
	}

	result, _ := body.Result.(map[string]any)
	token, _ := result["token"].(string)
	if token == "" {
		fmt.Println("✗ Signin response carried no token")
		return
	}
	if err := saveToken(token); err != nil {
		fmt.Printf("✗ Failed to store token: %v\n", err)
		return
	}
	fmt.Printf("✓ Signed in as: %s\n", *username)
}

func whoAmI() {
	token, err := loadToken()
	if err != nil {
		fmt.Println("Not signed in. Run: identityhub signin")
		return
	}

	status, body := get("/system/me", token)
	if status != http.StatusOK {
		fmt.Printf("✗ Request failed: %s\n", describe(body))
		return
	}

	claim, _ := body.Result.(map[string]any)
	fmt.Printf("Signed in as %v (id %v)\n", claim["username"], claim["user_id"])
}

func changePassword(args []string) {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	oldPassword := fs.String("old", "", "current password")
	newPassword := fs.String("new", "", "new password (min 8 characters)")
	fs.Parse(args)

	if *oldPassword == "" || *newPassword == "" {
		fmt.Println("Error: old and new passwords are required")
		fs.PrintDefaults()
		return
	}

	token, err := loadToken()
	if err != nil {
		fmt.Println("Not signed in. Run: identityhub signin")
		return
	}

	status, body := post("/system/me/update-password", map[string]string{
		"oldPassword": *oldPassword,
		"newPassword": *newPassword,
	}, token)
	if status == http.StatusOK {
		fmt.Println("✓ Password changed")
	} else {
		fmt.Printf("✗ Password change failed: %s\n", describe(body))
	}
}

func handleUsers(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: identityhub users <list|get|delete>")
		return
	}

	switch args[0] {
	case "list":
		listUsers(args[1:])
	case "get":
		getUser(args[1:])
	case "delete":
		deleteUser(args[1:])
	default:
		fmt.Printf("unknown users command: %s\n", args[0])
	}
}

func listUsers(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 10, "page size")
	skip := fs.Int("skip", 0, "records to skip")
	username := fs.String("username", "", "filter by exact username")
	fs.Parse(args)

	token, err := loadToken()
	if err != nil {
		fmt.Println("Not signed in. Run: identityhub signin")
		return
	}

	path := fmt.Sprintf("/users?limit=%d&skip=%d", *limit, *skip)
	if *username != "" {
		path += "&username=" + *username
	}

	status, body := get(path, token)
	if status != http.StatusOK {
		fmt.Printf("✗ Request failed: %s\n", describe(body))
		return
	}

	users, _ := body.Result.([]any)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tACTIVE\tCREATED")
	for _, raw := range users {
		u, _ := raw.(map[string]any)
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", u["id"], u["username"], u["active"], u["createdAt"])
	}
	w.Flush()
	if body.Meta != nil {
		fmt.Printf("total: %v\n", body.Meta["totalCount"])
	}
}

func getUser(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	id := fs.String("id", "", "user id")
	fs.Parse(args)

	token, err := loadToken()
	if err != nil {
		fmt.Println("Not signed in. Run: identityhub signin")
		return
	}

	status, body := get("/users/"+*id, token)
	if status != http.StatusOK {
		fmt.Printf("✗ Request failed: %s\n", describe(body))
		return
	}

	pretty, _ := json.MarshalIndent(body.Result, "", "  ")
	fmt.Println(string(pretty))
}

func deleteUser(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.String("id", "", "user id")
	fs.Parse(args)

	token, err := loadToken()
	if err != nil {
		fmt.Println("Not signed in. Run: identityhub signin")
		return
	}

	req, err := http.NewRequest(http.MethodDelete, apiURL()+"/users/"+*id, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var body envelope
	json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode == http.StatusOK {
		fmt.Println("✓ User deleted")
	} else {
		fmt.Printf("✗ Delete failed: %s\n", describe(body))
	}
}

func post(path string, payload map[string]string, token string) (int, envelope) {
	data, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, apiURL()+path, bytes.NewReader(data))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 0, envelope{}
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 0, envelope{}
	}
	defer resp.Body.Close()

	var body envelope
	json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func get(path, token string) (int, envelope) {
	req, err := http.NewRequest(http.MethodGet, apiURL()+path, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 0, envelope{}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 0, envelope{}
	}
	defer resp.Body.Close()

	var body envelope
	json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

// describe extracts a human-readable message from an envelope.
func describe(body envelope) string {
	if result, ok := body.Result.(map[string]any); ok {
		if msg, ok := result["message"].(string); ok {
			return msg
		}
	}
	if len(body.Errors) > 0 {
		return body.Errors[0]
	}
	return "unexpected response"
}

func apiURL() string {
	if url := os.Getenv("IDENTITYHUB_API"); url != "" {
		return url
	}
	return "http://localhost:8080/api/v1"
}

func tokenPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".identityhub", "token"), nil
}

func saveToken(token string) error {
	path, err := tokenPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token), 0o600)
}

func loadToken() (string, error) {
	path, err := tokenPath()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
