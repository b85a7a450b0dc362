/*
 * Copyright 2024 RustyShim Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package rustyshim provides a lightweight client for the rustyshim Arrow Flight
service, which exposes SciDB arrays as SQL tables.

# Connection

Use Connect with a location, or ConnectHost with a host, port and scheme. Both
run the credential handshake before returning:

	conn, err := rustyshim.Connect(ctx, "grpc+tcp://<host>:50051", "user", "secret")
	if err != nil {
		return err
	}
	defer conn.Close()

Open takes a Config when more control is needed, for example to request an
admin session or to attach a logger:

	conn, err := rustyshim.Open(ctx, &rustyshim.Config{
		Host:         "localhost",
		Username:     "admin",
		Password:     "secret",
		RequestAdmin: true,
	})

# Query Data

GetSQL resolves a query and returns a lazy record reader:

	reader, err := conn.GetSQL(ctx, "SELECT * FROM my_array")
	if err != nil {
		return err
	}
	defer reader.Release()
	for reader.Next() {
		fmt.Println(reader.Record())
	}

QueryAsArrowBatch drains the reader into a ResultSet.

# Maintenance

Admin sessions may list and invoke server actions:

	messages, err := conn.RefreshContext(ctx)
*/
package rustyshim
