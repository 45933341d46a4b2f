package apikey_test

import (
	"fmt"

	"github.com/jonwraymond/authflow/strategy/apikey"
)

func ExampleMemoryStore() {
	keys, err := apikey.NewMemoryStore(
		&apikey.KeyInfo{ID: "deploy", Hash: apikey.HashKey("s3cret"), Subject: "ci-bot"},
	)
	if err != nil {
		panic(err)
	}
	s, _ := apikey.New(keys)
	fmt.Println(s.Name(), keys.IDs())
	// Output: apikey [deploy]
}
