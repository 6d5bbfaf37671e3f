package main

import "github.com/loykin/relaunchr/pkg/client"

func newAPIClient(f APIFlags) *client.Client {
	return client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout, Insecure: f.APIInsecure, Token: f.APIToken})
}
