// roomtoken mints signed room-join tokens for participants. Signing
// credentials come from ROOM_API_KEY and ROOM_API_SECRET; they are never
// embedded in the token itself.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/svaddadi/roomagent/internal/token"
)

func main() {
	identity := flag.String("identity", "", "participant identity (required)")
	name := flag.String("name", "", "participant display name")
	roomName := flag.String("room", "lobby", "room to grant access to")
	ttl := flag.Duration("ttl", 6*time.Hour, "token lifetime")
	flag.Parse()

	if strings.TrimSpace(*identity) == "" {
		fmt.Fprintln(os.Stderr, "usage: roomtoken -identity <id> [-name <name>] [-room <room>] [-ttl <duration>]")
		os.Exit(2)
	}

	keyID := strings.TrimSpace(os.Getenv("ROOM_API_KEY"))
	secret := strings.TrimSpace(os.Getenv("ROOM_API_SECRET"))

	signed, err := token.Issue(*identity, *name, *roomName,
		token.Grants{RoomJoin: true}, keyID, secret, *ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}

	fmt.Println(signed)
}
